package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpyw/bceval"
	"github.com/mpyw/bceval/internal/image"
)

var (
	operand      int
	snapshotPath string
)

var valuesCmd = &cobra.Command{
	Use:   "values IMAGE METHOD AT",
	Short: "Print the values of an instruction operand",
	Long: `Print the values operand -n of the instruction at AT can take. METHOD is
a key such as 'app/Svc.run()V'; AT is a label or an instruction index.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		im, err := loadImage(args[0])
		if err != nil {
			return err
		}
		pos, err := position(im, args[1], args[2])
		if err != nil {
			return err
		}
		a := newAnalyzer(im)
		vs, err := a.ArgumentValues(args[1], pos, operand)
		printValues(cmd, fmt.Sprintf("%s @%d operand %d", args[1], pos, operand), vs, err)
		if err := writeSnapshot(a); err != nil {
			return err
		}
		if len(vs) == 0 && err != nil {
			return errors.New("no values")
		}
		return nil
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree IMAGE METHOD AT",
	Short: "Print how the values of an instruction operand were derived",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		im, err := loadImage(args[0])
		if err != nil {
			return err
		}
		pos, err := position(im, args[1], args[2])
		if err != nil {
			return err
		}
		a := newAnalyzer(im)
		c, err := a.Context(args[1])
		if err != nil {
			return err
		}
		id, err := c.Operand(pos, operand)
		if err != nil {
			return err
		}
		vs, err := a.ConcreteValues(id)
		printValues(cmd, fmt.Sprintf("%s @%d operand %d", args[1], pos, operand), vs, err)
		fmt.Fprintln(cmd.OutOrStdout(), boxStyle.Render(a.Explain(id)))
		return nil
	},
}

var callSitesCmd = &cobra.Command{
	Use:   "callsites IMAGE OWNER.NAME(DESC)",
	Short: "Print the values passed at every call to a method",
	Long: `Print operand -n of every call to the method. Calls through subtypes of
OWNER match too. For instance methods operand 0 is the receiver.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		im, err := loadImage(args[0])
		if err != nil {
			return err
		}
		target, err := image.ParseMethodRef(args[1])
		if err != nil {
			return err
		}
		a := newAnalyzer(im)
		sites, err := a.CallSiteValues(context.Background(), *target, operand)
		if err != nil {
			return err
		}
		if len(sites) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("no calls to "+target.String()))
		}
		for _, cs := range sites {
			printValues(cmd, cs.String(), cs.Values, cs.Err)
		}
		return writeSnapshot(a)
	},
}

func printValues(cmd *cobra.Command, title string, vs []any, err error) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, siteStyle.Render(title))
	for _, s := range bceval.Strings(vs) {
		fmt.Fprintln(w, valueStyle.Render(fmt.Sprintf("%q", s)))
	}
	if err != nil {
		fmt.Fprintln(w, valueStyle.Render(warnStyle.Render(err.Error())))
	}
}

func writeSnapshot(a *bceval.Analyzer) error {
	if snapshotPath == "" {
		return nil
	}
	data, err := a.Snapshot()
	if err != nil {
		return err
	}
	return os.WriteFile(snapshotPath, data, 0o644)
}

func init() {
	for _, c := range []*cobra.Command{valuesCmd, treeCmd, callSitesCmd} {
		c.Flags().IntVarP(&operand, "operand", "n", 0, "operand index in push order")
		rootCmd.AddCommand(c)
	}
	valuesCmd.Flags().StringVar(&snapshotPath, "snapshot", "", "write the call cache to a CBOR file")
	callSitesCmd.Flags().StringVar(&snapshotPath, "snapshot", "", "write the call cache to a CBOR file")
}
