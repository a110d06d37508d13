package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-narrator/internal/job"
	"github.com/loqalabs/loqa-narrator/internal/tts"
)

func newSynthCommand(ctx *commandContext) *cobra.Command {
	var (
		textFlag  string
		fileFlag  string
		voiceFlag string
		outFlag   string
		maxWords  int
	)

	cmd := &cobra.Command{
		Use:   "synth [text]",
		Short: "Synthesize text into an audio file and a matching .srt",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			text, err := resolveText(cmd, textFlag, fileFlag, args)
			if err != nil {
				return err
			}
			logger := ctx.logger(cmd)

			synth, err := tts.New(cfg.TTS)
			if err != nil {
				return err
			}
			voice := strings.TrimSpace(voiceFlag)
			if voice != "" {
				if voices, err := synth.Voices(cmd.Context()); err != nil {
					logger.Warn("could not verify voice", slog.String("error", err.Error()))
				} else if match, ok := tts.FindVoice(voices, voice); ok {
					voice = match.ShortName
				} else {
					return fmt.Errorf("unknown voice %q (see `loqa-narrate voices`)", voice)
				}
			}

			if maxWords <= 0 {
				maxWords = cfg.Subtitles.MaxWordsPerCue
			}
			runner := job.NewRunner(synth, nil, job.Options{
				MaxWordsPerCue: maxWords,
				DefaultVoice:   cfg.TTS.Voice,
				OutputDir:      cfg.Jobs.OutputDir,
				AudioExtension: cfg.Jobs.AudioExtension,
			}, logger)

			result, err := runner.Run(cmd.Context(), job.Request{Text: text, Voice: voice, AudioPath: outFlag})
			if err != nil {
				if result.AudioBytes > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "partial audio left at %s (%s)\n", result.AudioPath, humanize.Bytes(uint64(result.AudioBytes)))
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Audio:     %s (%s)\n", result.AudioPath, humanize.Bytes(uint64(result.AudioBytes)))
			fmt.Fprintf(out, "Subtitles: %s (%s, %s)\n", result.SubtitlePath,
				pluralize(result.CueCount, "cue"), pluralize(result.WordCount, "word"))
			fmt.Fprintf(out, "Elapsed:   %s\n", result.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&textFlag, "text", "t", "", "Text to synthesize")
	cmd.Flags().StringVarP(&fileFlag, "file", "f", "", "Read text from a file (- for stdin)")
	cmd.Flags().StringVar(&voiceFlag, "voice", "", "Voice short name (defaults to tts.voice)")
	cmd.Flags().StringVarP(&outFlag, "out", "o", "", "Audio output path (defaults to jobs.output_dir/<id><ext>)")
	cmd.Flags().IntVar(&maxWords, "max-words", 0, "Words per subtitle cue (defaults to subtitles.max_words_per_cue)")
	return cmd
}

func resolveText(cmd *cobra.Command, text, file string, args []string) (string, error) {
	sources := 0
	for _, s := range []string{text, file} {
		if s != "" {
			sources++
		}
	}
	if len(args) == 1 {
		sources++
		text = args[0]
	}
	if sources > 1 {
		return "", errors.New("provide text as an argument, --text or --file, not several")
	}
	if file == "" {
		if strings.TrimSpace(text) == "" {
			return "", errors.New("no text to synthesize")
		}
		return text, nil
	}
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return string(data), nil
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return humanize.Comma(int64(n)) + " " + noun + "s"
}
