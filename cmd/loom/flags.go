package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/loom/internal/engine"
	"github.com/samcharles93/loom/internal/logger"
	"github.com/samcharles93/loom/internal/session"
	"github.com/samcharles93/loom/internal/tokenizer"
)

var (
	maxContext int64
	hiddenSize int64
	modelSeed  int64
	logLevel   string
	logFormat  string
	debug      bool
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "max-context",
			Aliases:     []string{"max-ctx", "ctx", "c"},
			Usage:       "max context length",
			Value:       4096,
			Destination: &maxContext,
		},
		&cli.Int64Flag{
			Name:        "hidden-size",
			Usage:       "toy pipeline hidden dimension",
			Value:       64,
			Destination: &hiddenSize,
		},
		&cli.Int64Flag{
			Name:        "model-seed",
			Usage:       "toy pipeline weight seed",
			Value:       1,
			Destination: &modelSeed,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func newLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "text":
		return logger.Default()
	default:
		return logger.Pretty(os.Stderr, level)
	}
}

// buildModel wires the byte-level codec into the toy pipeline. The CLI
// always runs self-contained; a real accelerator pipeline plugs in behind
// the same engine.Pipeline interface.
func buildModel(log logger.Logger) (*session.Model, *engine.Toy, error) {
	codec := tokenizer.NewByteCodec()
	pipe := engine.NewToy(codec.VocabSize(), int(hiddenSize), int(maxContext), modelSeed)
	model, err := session.NewModel(session.Config{
		VocabSize:        codec.VocabSize(),
		MaxContextTokens: int(maxContext),
		EOSTokenID:       codec.EOSTokenID(),
	}, pipe, codec, log)
	if err != nil {
		return nil, nil, err
	}
	return model, pipe, nil
}
