// photocopy: template-driven media organizer with crash-safe resume and rollback.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"photocopy/internal/types"
)

// flags shared by the root command.
var (
	flagSrc             string
	flagDest            string
	flagMode            string
	flagParallel        int
	flagDuplicates      string
	flagCasing          string
	flagGranularity     string
	flagFullCountries   bool
	flagUnknownFallback string
	flagMinDate         string
	flagMaxDate         string
	flagSkipExisting    bool
	flagOverwrite       bool
	flagFresh           bool
	flagResume          bool
	flagDryRun          bool
	flagNoRollback      bool
	flagCheckpointDir   string
	flagReportPath      string
	flagInteractive     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "photocopy",
		Short: "Organize photos and videos into a template-driven folder layout",
		Long: `photocopy sorts large media collections from a source tree into a
destination tree whose layout is driven by a path template.

Features:
- Path templates with date, location, camera and album variables
  (e.g. "/photos/{year}/{month}/{name}{ext}")
- Conditional variables with fallbacks: {city?min=10|country}
- Crash-safe: interrupted runs resume without re-copying completed work
- Parallel copying with bounded workers
- Transaction log and full rollback of completed runs
- Sidecar files (.xmp, .aae, ...) travel with their primary
`,
		Example: `  # Organize by year and month
  photocopy --src ~/DCIM --dest "/photos/{year}/{month}/{name}{ext}"

  # Move instead of copy, resuming a previous interrupted run
  photocopy --src ~/DCIM --dest "/photos/{year}/{month}/{name}{ext}" --mode move --resume

  # Undo a completed run
  photocopy rollback /photos/photocopy-20240101-093000-ab12cd34.json
`,
		Run: func(cmd *cobra.Command, args []string) {
			// No arguments at all defaults to interactive mode.
			if len(os.Args) == 1 {
				flagInteractive = true
			}
			if flagInteractive {
				interactivePrompt()
			}
			if flagSrc == "" || flagDest == "" {
				fmt.Fprintln(os.Stderr, "[FATAL] Source directory and destination pattern are required")
				os.Exit(1)
			}

			cfg, err := buildConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "[FATAL] %v\n", err)
				os.Exit(1)
			}
			os.Exit(runCopy(cfg))
		},
	}

	rootCmd.Flags().StringVarP(&flagSrc, "src", "s", "", "Source directory")
	rootCmd.Flags().StringVarP(&flagDest, "dest", "d", "", "Destination path template")
	rootCmd.Flags().StringVar(&flagMode, "mode", "copy", "Operation mode: copy or move")
	rootCmd.Flags().IntVar(&flagParallel, "parallel", 0, "Worker count (0 = number of CPUs)")
	rootCmd.Flags().StringVar(&flagDuplicates, "duplicates-format", "-{number}", "Suffix format for duplicate destinations")
	rootCmd.Flags().StringVar(&flagCasing, "casing", "original", "Path casing: original, lower, upper or title")
	rootCmd.Flags().StringVar(&flagGranularity, "granularity", "city", "Location granularity: city, county or state")
	rootCmd.Flags().BoolVar(&flagFullCountries, "full-country-names", false, "Expand ISO country codes to full names")
	rootCmd.Flags().StringVar(&flagUnknownFallback, "unknown-fallback", "unknown", "Fallback value for unresolvable variables")
	rootCmd.Flags().StringVar(&flagMinDate, "min-date", "", "Ignore files taken before this date (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&flagMaxDate, "max-date", "", "Ignore files taken after this date (YYYY-MM-DD)")
	rootCmd.Flags().BoolVar(&flagSkipExisting, "skip-existing", false, "Skip files whose destination already exists")
	rootCmd.Flags().BoolVar(&flagOverwrite, "overwrite", false, "Overwrite existing destination files")
	rootCmd.Flags().BoolVar(&flagFresh, "fresh", false, "Ignore any previous checkpoint and start fresh")
	rootCmd.Flags().BoolVar(&flagResume, "resume", false, "Resume from the latest valid checkpoint without prompting")
	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Plan only; do not touch the disk")
	rootCmd.Flags().BoolVar(&flagNoRollback, "no-rollback", false, "Disable transaction logging")
	rootCmd.Flags().StringVar(&flagCheckpointDir, "checkpoint-dir", "", "Override the checkpoint directory")
	rootCmd.Flags().StringVar(&flagReportPath, "report", "", "Path to the HTML report")
	rootCmd.Flags().BoolVar(&flagInteractive, "interactive", false, "Run in interactive mode (prompts for input)")

	rootCmd.AddCommand(rollbackCmd(), transactionsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// buildConfig assembles the run configuration from the parsed flags.
func buildConfig() (*types.Config, error) {
	cfg := &types.Config{
		Source:                  flagSrc,
		Destination:             flagDest,
		Mode:                    types.ParseMode(flagMode),
		Parallelism:             flagParallel,
		DuplicatesFormat:        flagDuplicates,
		Casing:                  types.ParsePathCasing(flagCasing),
		UseFullCountryNames:     flagFullCountries,
		Granularity:             types.ParseGranularity(flagGranularity),
		UnknownLocationFallback: flagUnknownFallback,
		SkipExisting:            flagSkipExisting,
		Overwrite:               flagOverwrite,
		FreshStart:              flagFresh,
		Resume:                  flagResume,
		DryRun:                  flagDryRun,
		NoRollback:              flagNoRollback,
		CheckpointDir:           flagCheckpointDir,
	}

	var err error
	if flagMinDate != "" {
		if cfg.MinDate, err = time.Parse("2006-01-02", flagMinDate); err != nil {
			return nil, fmt.Errorf("invalid --min-date %q: %v", flagMinDate, err)
		}
	}
	if flagMaxDate != "" {
		if cfg.MaxDate, err = time.Parse("2006-01-02", flagMaxDate); err != nil {
			return nil, fmt.Errorf("invalid --max-date %q: %v", flagMaxDate, err)
		}
	}
	return cfg, nil
}

func checkDirExists(path string, label string) {
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[FATAL] %s directory '%s' does not exist: %v\n", label, path, err)
		os.Exit(1)
	}
	if !info.IsDir() {
		fmt.Fprintf(os.Stderr, "[FATAL] %s path '%s' is not a directory\n", label, path)
		os.Exit(1)
	}
}
