package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mpyw/bceval/internal/image"
)

var outPath string

var compileCmd = &cobra.Command{
	Use:   "compile IMAGE",
	Short: "Convert an image to the binary CBOR form",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := image.Load(args[0])
		if err != nil {
			return err
		}
		if _, err := f.Build(); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		data, err := image.Encode(f)
		if err != nil {
			return err
		}
		out := outPath
		if out == "" {
			out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".cbor"
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d bytes)\n", goodStyle.Render("wrote"), out, len(data))
		return nil
	},
}

var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bceval version %s\n", version)
	},
}

func init() {
	compileCmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (default: IMAGE with a .cbor extension)")
	rootCmd.AddCommand(compileCmd, versionCmd)
}
