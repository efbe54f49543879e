// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/524D/mzfeat/internal/config"
	"github.com/524D/mzfeat/internal/export/sqlite"
	"github.com/524D/mzfeat/internal/lcms"
	"github.com/524D/mzfeat/internal/logging"
	"github.com/524D/mzfeat/internal/storage"
)

// Program name and version
const progName = "mzFeat"

var progVersion = `Unknown`

// ErrRangeSpec means a range argument could not be used
var ErrRangeSpec = errors.New("invalid range specified")

// Command line parameters of the detect command
type params struct {
	configFilename    string
	outFilename       string
	mzIdentMlFilename string
	rtWindow          string
	debugSpecs        string
	storage           string
	workers           int
	verbose           bool
	quiet             bool
}

var par params

var rootCmd = &cobra.Command{
	Use:   "mzfeat",
	Short: progName + " - LC-MS feature detection",
	Long: progName + ` detects the ions that were selected for fragmentation in LC-MS/MS
runs. For each ion it builds the elution profile, merges the fragment
spectra that belong to the same compound and collects co-eluting isotope
peaks, adducts, in-source fragments and co-isolated (chimeric) ions.`,
	SilenceUsage: true,
}

var detectCmd = &cobra.Command{
	Use:   "detect [flags] <mzML file>...",
	Short: "Detect fragmented ions and write them to an SQLite database",
	Long: `Detect fragmented ions in one or more mzML files. All files are processed
with the same settings and written to one SQLite database.

Examples:
  # Detect ions with default settings, output in run.mzfeat.sqlite
  mzfeat detect run.mzML

  # Two runs, four workers, spectra spilled to disk
  mzfeat detect --workers 4 --storage mmap -o ions.sqlite a.mzML b.mzML

  # Attach peptide identifications and restrict to 5-60 minutes
  mzfeat detect --mzid run.mzid --rt 300:3600 run.mzML`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDetect,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", progName, progVersion)
	},
}

func init() {
	rootCmd.Version = progVersion
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(versionCmd)

	f := detectCmd.Flags()
	f.StringVarP(&par.outFilename, "output", "o", "",
		"`filename` of the SQLite output (default <first input>.mzfeat.sqlite)")
	f.StringVar(&par.configFilename, "config", "",
		"YAML configuration `file` (default $MZFEAT_CONFIG)")
	f.StringVar(&par.mzIdentMlFilename, "mzid", "",
		"mzIdentML `filename` with identifications of the fragment spectra")
	f.StringVar(&par.rtWindow, "rt", ":",
		"retention time `range` in seconds of the scans to use, e.g. 300:3600")
	f.StringVar(&par.debugSpecs, "debug", "",
		"print the ions with their apex in scan `range` e.g. 300:320")
	f.StringVar(&par.storage, "storage", "",
		"where to keep the spectra: memory or mmap (overrides the configuration)")
	f.IntVar(&par.workers, "workers", 0,
		"number of samples processed in parallel, 0 for one per sample (overrides the configuration)")
	f.BoolVar(&par.verbose, "verbose", false, "log debug messages")
	f.BoolVar(&par.quiet, "quiet", false, "only log errors")
}

// Parse string like "10:20" into 2 values, 10 and 20
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "10:"), the default is assigned
func parseIntRange(r string, min int, max int) (int, int, error) {
	re := regexp.MustCompile(`\s*(\-?\d*):(\-?\d*)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.Atoi(m[1])
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 3 && m[2] != "" {
		maxOut, _ = strconv.Atoi(m[2])
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// Parse string like "-12.01e1:+6" into 2 values, -120.1 and 6.0
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12.01e1:"), the default is assigned
func parseFloat64Range(r string, min float64, max float64) (
	float64, float64, error) {
	re := regexp.MustCompile(`\s*([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?):([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.ParseFloat(m[1], 64)
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 4 && m[3] != "" {
		maxOut, _ = strconv.ParseFloat(m[3], 64)
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// loadConfig reads the configuration and applies the command line
// overrides
func loadConfig(cmd *cobra.Command, par params) (*config.Config, error) {
	cfg, err := config.Load(par.configFilename)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = par.workers
	}
	if cmd.Flags().Changed("storage") {
		cfg.Storage.Mode = strings.ToLower(par.storage)
	}
	switch {
	case par.verbose:
		cfg.Logging.Level = "debug"
	case par.quiet:
		cfg.Logging.Level = "error"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// outputFilename returns the -o value, or the first input with its
// extension replaced
func outputFilename(par params, inputs []string) string {
	if par.outFilename != "" {
		return par.outFilename
	}
	ext := filepath.Ext(inputs[0])
	return strings.TrimSuffix(inputs[0], ext) + ".mzfeat.sqlite"
}

func newStore(sc config.StorageConfig) (storage.Store, error) {
	if sc.Mode == config.StorageMmap {
		return storage.NewMmapStore(sc.Dir, sc.CacheSize)
	}
	return storage.NewMemoryStore(), nil
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, par)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.JSON)
	rtMin, rtMax, err := parseFloat64Range(par.rtWindow, 0, math.Inf(1))
	if err != nil {
		return fmt.Errorf("--rt %q: %w", par.rtWindow, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	return detect(ctx, cmd.OutOrStdout(), log, cfg, par, args, rtMin, rtMax)
}

// detect runs the whole pipeline on the mzML files in inputs
func detect(ctx context.Context, out io.Writer, log *slog.Logger, cfg *config.Config,
	par params, inputs []string, rtMin, rtMax float64) error {
	inst, err := lcms.NewInstance(cfg.Processing, log)
	if err != nil {
		return err
	}

	start := time.Now()
	var stores []storage.Store
	defer func() {
		for _, s := range stores {
			if err := s.Close(); err != nil {
				log.Warn("closing spectrum store", "err", err)
			}
		}
	}()
	for _, path := range inputs {
		store, err := newStore(cfg.Storage)
		if err != nil {
			return err
		}
		stores = append(stores, store)
		run, err := loadRun(path, store, rtMin, rtMax, log)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if _, err := inst.AddSample(run, store); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		log.Info("loaded", "sample", run.Name, "scans", run.Len(), "elapsed", time.Since(start))
	}

	procErr := inst.ProcessAll(ctx, cfg.Workers)
	if ctx.Err() != nil {
		return procErr
	}
	log.Info("processed", "samples", len(inst.Samples), "elapsed", time.Since(start))

	if par.mzIdentMlFilename != "" {
		idents, err := readIdentifications(par.mzIdentMlFilename)
		if err != nil {
			return err
		}
		for _, s := range inst.Samples {
			n := lcms.AnnotateIdentifications(s.Ions, s.Run, idents)
			log.Info("identifications attached", "sample", s.Run.Name, "ions", n)
		}
	}

	if par.debugSpecs != "" {
		if err := debugLogIons(out, inst.Samples, par.debugSpecs); err != nil {
			return err
		}
	}
	printSummary(out, inst.Samples)

	outFilename := outputFilename(par, inputs)
	if err := os.Remove(outFilename); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	w, err := sqlite.NewWriter(outFilename)
	if err != nil {
		return err
	}
	for _, s := range inst.Samples {
		if s.Err() != nil {
			continue
		}
		if err := w.WriteSample(s); err != nil {
			w.Close()
			return fmt.Errorf("export %s: %w", s.Run.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	log.Info("written", "file", outFilename, "elapsed", time.Since(start))
	return procErr
}

// printSummary writes one table row per sample
func printSummary(w io.Writer, samples []*lcms.Sample) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Sample", "Scans", "Traces", "Ions", "Identified", "Status"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, s := range samples {
		identified := 0
		for _, ion := range s.Ions {
			if len(ion.Identifications) > 0 {
				identified++
			}
		}
		status := "ok"
		if err := s.Err(); err != nil {
			status = err.Error()
		}
		table.Append([]string{
			s.Run.Name,
			strconv.Itoa(s.Run.Len()),
			strconv.Itoa(s.Arena.Len()),
			strconv.Itoa(len(s.Ions)),
			strconv.Itoa(identified),
			status,
		})
	}
	table.Render()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", progName, err)
		os.Exit(1)
	}
}
