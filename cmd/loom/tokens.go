package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func tokensCmd() *cli.Command {
	var out string

	return &cli.Command{
		Name:  "tokens",
		Usage: "Dump the bulk token metadata blob (flags, length, bytes per id)",
		Flags: append(append(commonModelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output file (default stdout)",
				Destination: &out,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := loadConfig()
			applyCommonConfig(cmd, cfg)
			log := newLogger()

			model, _, err := buildModel(log)
			if err != nil {
				return err
			}
			blob, err := model.TokenMetadata()
			if err != nil {
				return fmt.Errorf("encode token metadata: %w", err)
			}

			if out == "" {
				_, err = os.Stdout.Write(blob)
				return err
			}
			if err := os.WriteFile(out, blob, 0o644); err != nil {
				return err
			}
			log.Info("wrote token metadata", "path", out, "bytes", len(blob), "vocab", model.VocabSize())
			return nil
		},
	}
}
