package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/chrissnell/riverprofile/internal/app"
	"github.com/chrissnell/riverprofile/internal/log"
	"github.com/chrissnell/riverprofile/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to configuration source:\n\t\t\t  YAML: config.yaml\n\t\t\t  SQLite: config.db\n\t\t\t  Use 'config-convert' tool to convert YAML→SQLite")
	cfgBackend := flag.String("config-backend", config.BackendYAML, "Configuration backend type: 'yaml' for YAML files, 'sqlite' for SQLite databases")
	envFile := flag.String("env", ".env", "Optional dotenv file with RIVERPROFILE_* overrides")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while the run is in progress")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("riverprofile %s\n", version)
		os.Exit(0)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Errorf("Failed to load %s: %v", *envFile, err)
		os.Exit(1)
	}

	filename, _ := filepath.Abs(*cfgFile)
	cfgData, err := config.Load(filename, *cfgBackend)
	if err != nil {
		log.Errorf("Failed to load configuration. Did you pass the -config flag? Run with -h for help: %v", err)
		os.Exit(1)
	}
	cfgData.ApplyEnv()

	application := app.New(cfgData, log.GetSugaredLogger())
	application.MetricsAddr = *metricsAddr

	d, err := application.Run(context.Background())
	if d != nil {
		log.Infow("run diagnostics",
			"run", d.RunID,
			"segments", d.Segments,
			"heads", d.Heads,
			"outlets", d.Outlets,
			"selected", d.Selected,
			"extracted", d.Extracted,
			"cycles", d.Cycles,
			"ambiguities", len(d.Ambiguities),
			"missing_elevation", d.MissingElevation,
			"missing_area", d.MissingArea,
			"sink_errors", d.SinkErrors,
			"failures", len(d.Failures),
			"duration", d.FinishedAt.Sub(d.StartedAt),
		)
	}
	if err != nil {
		log.Errorf("Application error: %v", err)
		os.Exit(1)
	}
}
