package main

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
)

func tokenizeCmd() *cli.Command {
	var allowSpecial bool

	return &cli.Command{
		Name:      "tokenize",
		Usage:     "Exact-tokenize text (no implicit prefix or BOS)",
		ArgsUsage: "<text>",
		Flags: append(append(commonModelFlags(), loggingFlags()...),
			&cli.BoolFlag{
				Name:        "allow-special",
				Usage:       "recognize literal special-token spellings",
				Destination: &allowSpecial,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := loadConfig()
			applyCommonConfig(cmd, cfg)
			log := newLogger()

			text := strings.Join(cmd.Args().Slice(), " ")
			if text == "" {
				return fmt.Errorf("text argument is required")
			}

			model, _, err := buildModel(log)
			if err != nil {
				return err
			}
			ids, err := model.TokenizeExact(text, allowSpecial)
			if err != nil {
				return err
			}

			type entry struct {
				ID   int    `json:"id"`
				Name string `json:"name"`
				Text string `json:"text"`
			}
			entries := make([]entry, 0, len(ids))
			for _, id := range ids {
				name, err := model.TokenName(id)
				if err != nil {
					return err
				}
				b, err := model.TokenBytes(id)
				if err != nil {
					return err
				}
				entries = append(entries, entry{ID: id, Name: name, Text: string(b)})
			}

			data, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
