package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voltquery/voltquery/internal/model"
)

var (
	askZip  string
	askTopK int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("ask"); err != nil {
			return err
		}

		env, err := buildEnv(cfg)
		if err != nil {
			return err
		}

		answer, err := env.Engine.Query(cmd.Context(), model.Question{
			Text:    args[0],
			ZipCode: askZip,
			TopK:    askTopK,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, answer.Answer)
		fmt.Fprintln(out)
		if loc := answer.DetectedLocation; loc != nil {
			fmt.Fprintf(out, "Location: %s\n", locationLine(loc))
		}
		fmt.Fprintf(out, "Tools: %v\n", answer.ToolsUsed)
		fmt.Fprintf(out, "Sources: %d\n", answer.NumSources)
		return nil
	},
}

func locationLine(loc *model.DetectedLocation) string {
	switch {
	case loc.ZipCode != "":
		return loc.ZipCode
	case loc.City != "" && loc.State != "":
		return loc.City + ", " + loc.State
	case loc.State != "":
		return loc.State
	default:
		return loc.City
	}
}

func init() {
	askCmd.Flags().StringVar(&askZip, "zip", "", "zip code to scope retrieval")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "documents per tool (default 5)")
	rootCmd.AddCommand(askCmd)
}
