package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-narrator/internal/subtitle"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.srt>",
		Short: "Show the cues of an SRT file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cues, err := subtitle.Parse(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			rows := make([][]string, 0, len(cues))
			words := 0
			for _, cue := range cues {
				n := subtitle.WordCount(cue.Content)
				words += n
				rows = append(rows, []string{
					strconv.Itoa(cue.Index),
					subtitle.FormatTimestamp(cue.Start),
					subtitle.FormatTimestamp(cue.End),
					strconv.Itoa(n),
					cue.Content,
				})
			}
			out := cmd.OutOrStdout()
			if err := writeRows(out, []string{"#", "Start", "End", "Words", "Text"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft}); err != nil {
				return err
			}
			var end string
			if len(cues) > 0 {
				end = subtitle.FormatTimestamp(cues[len(cues)-1].End)
			} else {
				end = subtitle.FormatTimestamp(0)
			}
			_, err = fmt.Fprintf(out, "%s, %s, ends at %s\n", pluralize(len(cues), "cue"), pluralize(words, "word"), end)
			return err
		},
	}
}
