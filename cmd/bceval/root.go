package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/mpyw/bceval"
	"github.com/mpyw/bceval/internal/bytecode"
	"github.com/mpyw/bceval/internal/config"
	"github.com/mpyw/bceval/internal/image"
)

var (
	configPath string
	level      string
	noResolver bool
	noCrawl    bool
	verbosity  int
	logFile    string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:          "bceval",
	Short:        "Evaluate the values flowing through program bytecode",
	Long:         `bceval answers which concrete values an instruction of a component-based program can produce, without running it.`,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		c, err := loadConfig()
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("level") {
			c.Resolver.Level = level
		}
		if noResolver {
			c.Resolver.Enabled = false
		}
		if noCrawl {
			c.Crawler.Enabled = false
		}
		if flags.Changed("verbose") {
			c.Log.Verbosity = verbosity
		}
		if flags.Changed("log-file") {
			c.Log.File = logFile
		}
		if err := c.Validate(); err != nil {
			return err
		}

		var path *string
		if c.Log.File != "" {
			path = &c.Log.File
		}
		commonlog.Configure(c.Log.Verbosity, path)
		cfg = c
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.FindAndLoad(wd)
}

func loadImage(path string) (*image.Image, error) {
	f, err := image.Load(path)
	if err != nil {
		return nil, err
	}
	im, err := f.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return im, nil
}

// newAnalyzer applies the configuration to an image.
func newAnalyzer(im *image.Image) *bceval.Analyzer {
	opts := bceval.FromConfig(cfg)
	opts.Live = im.Live()
	return bceval.New(im.Program, opts)
}

// position accepts a label or an instruction index.
func position(im *image.Image, method, at string) (bytecode.Pos, error) {
	if pos, ok := im.Label(method, at); ok {
		return pos, nil
	}
	n, err := strconv.Atoi(at)
	if err != nil {
		return 0, fmt.Errorf("%s has no label %q", method, at)
	}
	return bytecode.Pos(n), nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "configuration file (default: nearest "+config.FileName+")")
	pf.StringVar(&level, "level", config.LevelVarOnly, "placeholder level for unresolved values: varOnly or full")
	pf.BoolVar(&noResolver, "no-resolver", false, "report unresolved values as failures")
	pf.BoolVar(&noCrawl, "no-crawl", false, "do not bind parameters through call sites")
	pf.CountVarP(&verbosity, "verbose", "v", "log verbosity (repeat for more)")
	pf.StringVar(&logFile, "log-file", "", "write logs to a file instead of stderr")

	rootCmd.RegisterFlagCompletionFunc("level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{config.LevelVarOnly, config.LevelFull}, cobra.ShellCompDirectiveNoFileComp
	})
}
