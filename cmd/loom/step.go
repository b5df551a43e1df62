package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/loom/internal/engine"
	"github.com/samcharles93/loom/internal/logits"
	"github.com/samcharles93/loom/internal/session"
)

func stepCmd() *cli.Command {
	var (
		system string
		prompt string
		temp   float64
		topK   int64
		seed   int64
	)

	return &cli.Command{
		Name:  "step",
		Usage: "Interactively step a decode session one token at a time",
		Flags: append(append(commonModelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "system",
				Usage:       "system message",
				Destination: &system,
			},
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "initial user message",
				Destination: &prompt,
			},
			&cli.FloatFlag{
				Name:        "temp",
				Aliases:     []string{"temperature", "t"},
				Usage:       "sampling temperature (0 = argmax)",
				Destination: &temp,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Usage:       "sampling top-k",
				Value:       40,
				Destination: &topK,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "sampling seed",
				Destination: &seed,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := loadConfig()
			applyCommonConfig(cmd, cfg)
			applyStepConfig(cmd, cfg, &temp, &topK, &seed)
			log := newLogger()

			model, _, err := buildModel(log)
			if err != nil {
				return err
			}

			var messages []engine.Message
			if system != "" {
				messages = append(messages, engine.Message{Role: "system", Content: system})
			}
			if prompt != "" {
				messages = append(messages, engine.Message{Role: "user", Content: prompt})
			}

			seq := model.NewSequence(messages)
			defer func() { _ = seq.Destroy() }()

			fmt.Println("commands: push <text> | sample | commit <id> | top [n] | surprise <id...> | state | quit")
			for {
				line, err := readInteractiveLine("loom> ")
				if err != nil {
					if errors.Is(err, io.EOF) {
						return nil
					}
					return err
				}
				fields := strings.Fields(line)
				if len(fields) == 0 {
					continue
				}

				switch fields[0] {
				case "quit", "exit", "q":
					return nil
				case "push":
					text := strings.TrimSpace(strings.TrimPrefix(line, "push"))
					ids, err := model.TokenizeExact(text, false)
					if err != nil {
						fmt.Println("error:", err)
						continue
					}
					if err := seq.Advance(ctx, ids, 0); err != nil {
						fmt.Println("error:", err)
						continue
					}
					fmt.Printf("pushed %d tokens\n", len(ids))
				case "sample":
					tok, err := seq.Sample(ctx, session.SampleOptions{
						Temperature: float32(temp),
						TopK:        int(topK),
						Seed:        seed,
					})
					if err != nil {
						fmt.Println("error:", err)
						continue
					}
					printToken(model, tok)
				case "commit":
					if len(fields) != 2 {
						fmt.Println("usage: commit <id>")
						continue
					}
					tok, err := strconv.Atoi(fields[1])
					if err != nil {
						fmt.Println("error:", err)
						continue
					}
					if err := seq.Advance(ctx, []int{tok}, 0); err != nil {
						fmt.Println("error:", err)
						continue
					}
					printToken(model, tok)
				case "top":
					n := 5
					if len(fields) == 2 {
						if v, err := strconv.Atoi(fields[1]); err == nil {
							n = v
						}
					}
					if err := printTop(ctx, model, seq, n); err != nil {
						fmt.Println("error:", err)
					}
				case "surprise":
					ids, err := parseIDs(fields[1:])
					if err != nil {
						fmt.Println("error:", err)
						continue
					}
					vals, err := seq.Logits(ctx)
					if err != nil {
						fmt.Println("error:", err)
						continue
					}
					mask := logits.NewBitset(model.VocabSize())
					for _, id := range ids {
						mask.Set(id)
					}
					fmt.Printf("surprise = %.4g\n", logits.Surprise(vals, mask))
				case "state":
					printState(model, seq)
				default:
					fmt.Println("unknown command:", fields[0])
				}
			}
		},
	}
}

func parseIDs(fields []string) ([]int, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("at least one token id is required")
	}
	ids := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		ids = append(ids, v)
	}
	return ids, nil
}

func printToken(model *session.Model, tok int) {
	name, _ := model.TokenName(tok)
	b, _ := model.TokenBytes(tok)
	fmt.Printf("%6d  %-10s %q\n", tok, name, string(b))
}

func printTop(ctx context.Context, model *session.Model, seq *session.Session, n int) error {
	vals, err := seq.Logits(ctx)
	if err != nil {
		return err
	}
	lp := logits.LogProbs(vals, nil)

	idx := make([]int, len(lp))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return lp[idx[a]] > lp[idx[b]] })

	if n > len(idx) {
		n = len(idx)
	}
	for _, id := range idx[:n] {
		name, _ := model.TokenName(id)
		b, _ := model.TokenBytes(id)
		fmt.Printf("%6d  p=%.4f  %-10s %q\n", id, math.Exp(float64(lp[id])), name, string(b))
	}
	return nil
}

func printState(model *session.Model, seq *session.Session) {
	toks, err := seq.Tokens()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("generated: %v\n", toks)
	if n, err := seq.PromptTokenCount(); err == nil {
		fmt.Printf("prompt tokens: %d\n", n)
	} else {
		fmt.Println("prompt tokens: (not primed)")
	}
	if left, err := seq.TokensLeft(); err == nil {
		fmt.Printf("tokens left: %d of %d\n", left, model.MaxContextTokens())
	}
}
