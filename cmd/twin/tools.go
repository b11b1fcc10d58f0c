package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LemonScripter/metaspace-fdir-public/internal/biocode"
	"github.com/LemonScripter/metaspace-fdir-public/internal/config"
	"github.com/LemonScripter/metaspace-fdir-public/internal/service"
	"github.com/LemonScripter/metaspace-fdir-public/internal/storage/biofile"
)

func newStressCmd(configPath *string) *cobra.Command {
	var (
		runs, workers, maxCycles int
		seed                     int64
		regenRate                float64
		asJSON                   bool
	)

	cmd := &cobra.Command{
		Use:   "stress [scenario...]",
		Short: "Run batch failure scenarios against independent networks",
		Long:  "Runs every named scenario (all of them when none is given) and reports recovery statistics.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default("stress")
			if *configPath != "" {
				loaded, err := config.LoadConfig(*configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			sc := service.StressConfig{
				Runs:      cfg.Stress.Runs,
				Workers:   cfg.Stress.Workers,
				QueueSize: cfg.Stress.QueueSize,
				MaxCycles: cfg.Stress.MaxCycles,
				RegenRate: cfg.Network.RegenRate,
				Seed:      cfg.Stress.Seed,
			}
			flags := cmd.Flags()
			if flags.Changed("runs") {
				sc.Runs = runs
			}
			if flags.Changed("workers") {
				sc.Workers = workers
			}
			if flags.Changed("max-cycles") {
				sc.MaxCycles = maxCycles
			}
			if flags.Changed("seed") {
				sc.Seed = seed
			}
			if flags.Changed("regen-rate") {
				sc.RegenRate = regenRate
			}

			scenarios := args
			if len(scenarios) == 0 {
				scenarios = service.Scenarios()
			}

			reports, err := service.NewStressRunner(sc, zap.NewNop()).Run(cmd.Context(), scenarios)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), reports)
			}
			return printStressReports(cmd.OutOrStdout(), reports)
		},
	}

	f := cmd.Flags()
	f.IntVar(&runs, "runs", 0, "networks per scenario")
	f.IntVar(&workers, "workers", 0, "concurrent workers")
	f.IntVar(&maxCycles, "max-cycles", 0, "regeneration cycles before a run counts as exhausted")
	f.Int64Var(&seed, "seed", 0, "seed for random_loss kill sets")
	f.Float64Var(&regenRate, "regen-rate", 0, "regeneration rate")
	f.BoolVar(&asJSON, "json", false, "print reports as JSON")
	return cmd
}

func printStressReports(out io.Writer, reports []service.ScenarioReport) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tRUNS\tRECOVERED\tUNRECOVERABLE\tEXHAUSTED\tERRORS\tMEAN CYCLES\tVALIDATION FAILURES\tMEAN FEASIBILITY")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%.2f\t%d\t%.2f\n",
			r.Scenario, r.Runs, r.Recovered, r.Unrecoverable, r.Exhausted, r.Errors,
			r.MeanCyclesToRecovery, r.ValidationFailures, r.MeanFinalFeasibility)
	}
	return tw.Flush()
}

func newDecodeCmd() *cobra.Command {
	var level int

	cmd := &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode one bio-code word",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decoded, err := biocode.DecodeHex(biocode.Level(level), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), decoded)
		},
	}
	cmd.Flags().IntVar(&level, "level", int(biocode.LevelMission), "word level (1 node, 2 module, 3 mission)")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.bio>",
		Short: "Dump a persisted bio-code file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := biofile.ReadFile(args[0])
			if err != nil {
				return err
			}
			return printBioFile(cmd.OutOrStdout(), f)
		},
	}
}

func printBioFile(out io.Writer, f *biofile.File) error {
	fmt.Fprintf(out, "magic=%s version=%d level=%d count_or_day=%d checksum_verified=%t\n",
		string(f.Header.Magic[:]), f.Header.Version, f.Level, f.Header.CountOrDay, f.Checked)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	switch f.Level {
	case biocode.LevelNode:
		fmt.Fprintln(tw, "NODE\tWORD\tSTATUS\tHEALTH\tCONFIDENCE")
		for _, rec := range f.Level1 {
			w := biocode.DecodeNode(rec.Word)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\n", w.ID, biocode.NodeHex(rec.Word), w.Status, w.Health, w.Confidence)
		}
	case biocode.LevelModule:
		fmt.Fprintln(tw, "MODULE\tWORD\tHEALTH\tTREND\tRISK")
		for _, rec := range f.Level2 {
			w := biocode.DecodeModule(rec.Word)
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\n", w.Capability, biocode.ModuleHex(rec.Word), w.Health, w.Trend, w.Risk)
		}
	case biocode.LevelMission:
		if rec := f.Level3; rec != nil {
			w := biocode.DecodeMission(rec.Word)
			fmt.Fprintln(tw, "WORD\tDAY\tFEASIBILITY\tACTION\tSAFETY MARGIN")
			fmt.Fprintf(tw, "%s\t%d\t%.2f\t%s\t%d\n", biocode.MissionHex(rec.Word), w.MissionDay, rec.Feasibility, w.Action, w.SafetyMargin)
		}
	}
	return tw.Flush()
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
