package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-narrator/internal/tts"
)

func newVoicesCommand(ctx *commandContext) *cobra.Command {
	var locale string

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List available voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			synth, err := tts.New(cfg.TTS)
			if err != nil {
				return err
			}
			voices, err := synth.Voices(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(voices))
			for _, v := range tts.SortVoices(voices) {
				if locale != "" && !strings.EqualFold(v.Locale, locale) {
					continue
				}
				rows = append(rows, []string{v.ShortName, v.Locale, v.Gender})
			}
			return writeRows(cmd.OutOrStdout(), []string{"Voice", "Locale", "Gender"}, rows, nil)
		},
	}
	cmd.Flags().StringVar(&locale, "locale", "", "Only list voices for this locale (e.g. en-US)")
	return cmd
}
