//go:build linux

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// stdinIsTTY is a small seam for tests.
var stdinIsTTY = isTTY

func isTTY() bool {
	st, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (st.Mode() & os.ModeCharDevice) != 0
}

var replHistory []string

// readInteractiveLine reads one line with basic editing when stdin is a
// terminal: cursor movement, word jumps, delete, and up/down history.
// Piped input falls back to plain buffered reads.
func readInteractiveLine(prompt string) (string, error) {
	if !stdinIsTTY() {
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

	fd := int(os.Stdin.Fd())
	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return "", err
	}
	raw := *saved
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return "", err
	}
	defer func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, saved)
	}()

	ed := &lineEditor{prompt: prompt, histPos: len(replHistory)}
	fmt.Print(prompt)
	var buf [16]byte
	for {
		n, err := os.Stdin.Read(buf[:])
		if err != nil {
			return "", err
		}
		for _, b := range buf[:n] {
			line, done, err := ed.feed(b)
			if err != nil {
				return "", err
			}
			if done {
				if strings.TrimSpace(line) != "" {
					replHistory = append(replHistory, line)
				}
				return line, nil
			}
		}
	}
}

type lineEditor struct {
	prompt string
	line   []byte
	cursor int

	// escape sequence decoding
	esc    int
	escSeq strings.Builder

	// history browsing
	histPos   int
	browsing  bool
	histDraft string
}

// feed consumes one input byte. done is true when the line is complete.
func (e *lineEditor) feed(b byte) (string, bool, error) {
	if e.esc == 1 {
		e.esc = 0
		switch b {
		case '[':
			e.esc = 2
			e.escSeq.Reset()
		case 'b', 'B':
			e.wordLeft()
		case 'f', 'F':
			e.wordRight()
		case 127:
			e.killWordBack()
		}
		return "", false, nil
	}
	if e.esc == 2 {
		e.escSeq.WriteByte(b)
		if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
			e.esc = 0
			e.handleCSI(e.escSeq.String())
		}
		return "", false, nil
	}

	switch b {
	case 27:
		e.esc = 1
	case '\r', '\n':
		fmt.Print("\r\n")
		return string(e.line), true, nil
	case 3: // Ctrl+C
		fmt.Print("^C\r\n")
		return "", false, io.EOF
	case 4: // Ctrl+D
		if len(e.line) == 0 {
			fmt.Print("\r\n")
			return "", false, io.EOF
		}
	case 127, 8:
		if e.cursor > 0 {
			e.line = append(e.line[:e.cursor-1], e.line[e.cursor:]...)
			e.cursor--
			e.redraw()
		}
	case 1: // Ctrl+A
		e.cursor = 0
		e.redraw()
	case 5: // Ctrl+E
		e.cursor = len(e.line)
		e.redraw()
	case 23: // Ctrl+W
		e.killWordBack()
	default:
		if b >= 32 {
			e.insert(b)
		}
	}
	return "", false, nil
}

func (e *lineEditor) handleCSI(seq string) {
	switch seq {
	case "A":
		e.historyPrev()
	case "B":
		e.historyNext()
	case "D":
		if e.cursor > 0 {
			e.cursor--
			e.redraw()
		}
	case "C":
		if e.cursor < len(e.line) {
			e.cursor++
			e.redraw()
		}
	case "H":
		e.cursor = 0
		e.redraw()
	case "F":
		e.cursor = len(e.line)
		e.redraw()
	case "3~":
		if e.cursor < len(e.line) {
			e.line = append(e.line[:e.cursor], e.line[e.cursor+1:]...)
			e.redraw()
		}
	case "1;5D", "5D":
		e.wordLeft()
	case "1;5C", "5C":
		e.wordRight()
	}
}

func (e *lineEditor) insert(b byte) {
	e.line = append(e.line, 0)
	copy(e.line[e.cursor+1:], e.line[e.cursor:])
	e.line[e.cursor] = b
	e.cursor++
	e.redraw()
}

func (e *lineEditor) historyPrev() {
	if len(replHistory) == 0 {
		return
	}
	if !e.browsing {
		e.histDraft = string(e.line)
		e.browsing = true
		e.histPos = len(replHistory)
	}
	if e.histPos > 0 {
		e.histPos--
		e.setLine(replHistory[e.histPos])
	}
}

func (e *lineEditor) historyNext() {
	if !e.browsing {
		return
	}
	if e.histPos < len(replHistory)-1 {
		e.histPos++
		e.setLine(replHistory[e.histPos])
	} else {
		e.histPos = len(replHistory)
		e.browsing = false
		e.setLine(e.histDraft)
	}
}

func (e *lineEditor) setLine(s string) {
	e.line = append(e.line[:0], s...)
	e.cursor = len(e.line)
	e.redraw()
}

func (e *lineEditor) wordLeft() {
	for e.cursor > 0 && wordSep(e.line[e.cursor-1]) {
		e.cursor--
	}
	for e.cursor > 0 && !wordSep(e.line[e.cursor-1]) {
		e.cursor--
	}
	e.redraw()
}

func (e *lineEditor) wordRight() {
	for e.cursor < len(e.line) && wordSep(e.line[e.cursor]) {
		e.cursor++
	}
	for e.cursor < len(e.line) && !wordSep(e.line[e.cursor]) {
		e.cursor++
	}
	e.redraw()
}

func (e *lineEditor) killWordBack() {
	start := e.cursor
	for start > 0 && wordSep(e.line[start-1]) {
		start--
	}
	for start > 0 && !wordSep(e.line[start-1]) {
		start--
	}
	e.line = append(e.line[:start], e.line[e.cursor:]...)
	e.cursor = start
	e.redraw()
}

func (e *lineEditor) redraw() {
	fmt.Printf("\r%s%s\x1b[K", e.prompt, string(e.line))
	if e.cursor < len(e.line) {
		fmt.Printf("\r%s%s", e.prompt, string(e.line[:e.cursor]))
	}
}

func wordSep(b byte) bool { return b == ' ' || b == '\t' }

func trimTrailingNewline(s string) string {
	return strings.TrimRight(s, "\r\n")
}
