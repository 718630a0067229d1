package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mpyw/bceval"
)

var checkCmd = &cobra.Command{
	Use:   "check IMAGE...",
	Short: "Evaluate the expectations recorded in images",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		failed := 0
		for _, path := range args {
			im, err := loadImage(path)
			if err != nil {
				return err
			}
			opts := bceval.FromConfig(cfg)
			failures, err := bceval.Check(im, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if len(failures) == 0 {
				fmt.Fprintf(w, "%s %s %s\n", goodStyle.Render("ok"), path, mutedStyle.Render(fmt.Sprintf("(%d)", len(im.Expect))))
				continue
			}
			failed += len(failures)
			fmt.Fprintf(w, "%s %s\n", badStyle.Render("FAIL"), path)
			for _, f := range failures {
				fmt.Fprintln(w, valueStyle.Render(f.String()))
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d expectations failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
