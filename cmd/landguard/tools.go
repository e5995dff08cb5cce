package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Varshaa-Selva/Languard-ai/pkg/artifacts"
	"github.com/Varshaa-Selva/Languard-ai/pkg/audit"
	"github.com/Varshaa-Selva/Languard-ai/pkg/compliance"
	"github.com/Varshaa-Selva/Languard-ai/pkg/config"
	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
	"github.com/Varshaa-Selva/Languard-ai/pkg/engine"
	"github.com/Varshaa-Selva/Languard-ai/pkg/finance"
	"github.com/Varshaa-Selva/Languard-ai/pkg/intake"
	"github.com/Varshaa-Selva/Languard-ai/pkg/regulation"
	"github.com/Varshaa-Selva/Languard-ai/pkg/risk"
	"github.com/Varshaa-Selva/Languard-ai/pkg/sensing"
)

// readApplication decodes and validates an application file. A missing ID
// is filled with a fresh one so the decision is attributable.
func readApplication(path string) (contracts.ParcelApplication, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return contracts.ParcelApplication{}, err
	}
	v, err := intake.NewValidator()
	if err != nil {
		return contracts.ParcelApplication{}, err
	}
	app, err := v.Decode(data)
	if err != nil {
		return contracts.ParcelApplication{}, err
	}
	if app.ID == "" {
		app.ID = engine.NewApplicationID(time.Now())
	}
	return app, nil
}

func runEvaluateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	file := cmd.String("file", "", "Path to an application JSON file (REQUIRED)")
	catalogPath := cmd.String("catalog", "", "Zone catalog YAML (default: built-in)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file is required")
		return 2
	}

	catalog, err := loadCatalog(*catalogPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	app, err := readApplication(*file)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	d, err := compliance.NewEvaluator(catalog).Evaluate(app)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, d)
}

func runPreCheckCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("precheck", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	file := cmd.String("file", "", "Path to a draft application JSON file (REQUIRED)")
	catalogPath := cmd.String("catalog", "", "Zone catalog YAML (default: built-in)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if *file == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file is required")
		return 2
	}

	catalog, err := loadCatalog(*catalogPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	app, err := readApplication(*file)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	res, err := compliance.NewEvaluator(catalog).PreCheck(app)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, res)
}

func runFeeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("fee", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	area := cmd.Float64("area", 0, "Plot area in square metres (REQUIRED)")
	floors := cmd.Int("floors", 0, "Proposed floors (REQUIRED)")
	zone := cmd.String("zone", regulation.ZoneResidential, "Zone ID")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if !(*area > 0) || *floors <= 0 {
		_, _ = fmt.Fprintln(stderr, "Error: --area and --floors must be positive")
		return 2
	}
	return printJSON(stdout, stderr, finance.NewQuote(*area, *floors, *zone))
}

type scoreOutput struct {
	contracts.RiskAssessment
	Metrics    contracts.ChangeMetrics `json:"metrics"`
	FlagReason string                  `json:"flag_reason,omitempty"`
}

func runScoreCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("score", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	rejected := cmd.Bool("rejected", false, "The compliance decision was a rejection")
	var sat sensing.SatelliteReport
	cmd.Float64Var(&sat.LandCoverChangePct, "land-cover", 0, "Land cover change percent")
	cmd.Float64Var(&sat.VegetationLossPct, "vegetation-loss", 0, "Vegetation loss percent")
	cmd.Float64Var(&sat.BuiltUpIncreasePct, "built-up", 0, "Built-up increase percent")
	var elev sensing.ElevationReport
	cmd.Float64Var(&elev.OldElevationM, "old-elevation", 0, "Surveyed elevation before, metres")
	cmd.Float64Var(&elev.NewElevationM, "new-elevation", 0, "Surveyed elevation after, metres")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	var elevation *sensing.ElevationReport
	cmd.Visit(func(f *flag.Flag) {
		if f.Name == "old-elevation" || f.Name == "new-elevation" {
			elevation = &elev
		}
	})

	metrics, err := sensing.Normalize(sat, elevation)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	decision := &contracts.ComplianceDecision{Approved: !*rejected}
	out := scoreOutput{
		RiskAssessment: risk.Score("", decision, &metrics),
		Metrics:        metrics,
		FlagReason:     sensing.FlagReason(sensing.DeriveFlags(metrics)),
	}
	return printJSON(stdout, stderr, out)
}

func runZonesCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("zones", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	catalogPath := cmd.String("catalog", "", "Zone catalog YAML (default: built-in)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	catalog, err := loadCatalog(*catalogPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, map[string]any{
		"version": catalog.Version(),
		"zones":   catalog.Zones(),
	})
}

// runVerifyCmd replays the configured ledger and checks every link. The exit
// code is 1 when the chain is broken.
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if cfg.LedgerDriver == config.DriverMemory {
		_, _ = fmt.Fprintln(stderr, "Warning: LEDGER_DRIVER=memory has no persisted entries")
	}

	ctx := context.Background()
	rec, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = closeLedger() }()

	v, err := rec.VerifyChain(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if code := printJSON(stdout, stderr, v); code != 0 {
		return code
	}
	if !v.Valid {
		return 1
	}
	return 0
}

func runExportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := audit.AsSystem(context.Background())
	rec, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = closeLedger() }()

	store, err := artifacts.NewStore(ctx, artifactConfig(cfg))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	pack, err := audit.NewExporter(rec, store, audit.NewLoggerWithWriter(stderr)).Export(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, pack)
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
