//go:build !linux

package main

import (
	"bufio"
	"io"
	"os"
	"strings"
)

func readInteractiveLine(_ string) (string, error) {
	r := bufio.NewReader(os.Stdin)
	s, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	if err == io.EOF && s == "" {
		return "", io.EOF
	}
	return trimTrailingNewline(s), nil
}

func trimTrailingNewline(s string) string {
	return strings.TrimRight(s, "\r\n")
}
