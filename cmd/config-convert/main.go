package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/riverprofile/pkg/config"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
		dryRun     = flag.Bool("dry-run", false, "Show what would be done without executing")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if _, err := os.Stat(*sqliteFile); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: SQLite file already exists: %s\n", *sqliteFile)
		fmt.Fprintf(os.Stderr, "Use -force to overwrite or choose a different filename\n")
		os.Exit(1)
	}

	fmt.Printf("Converting YAML configuration to SQLite...\n")
	fmt.Printf("  Source: %s\n", *yamlFile)
	fmt.Printf("  Target: %s\n", *sqliteFile)

	configData, err := config.NewYAMLProvider(*yamlFile).LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading YAML configuration: %v\n", err)
		os.Exit(1)
	}
	if err := configData.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: configuration does not validate: %v\n", err)
	}

	if *dryRun {
		printConfigSummary(configData)
		fmt.Println("DRY RUN complete - no database created")
		return
	}

	if *force {
		if err := os.Remove(*sqliteFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error removing existing SQLite file: %v\n", err)
			os.Exit(1)
		}
	}

	if err := saveSQLite(*sqliteFile, configData); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing SQLite configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Conversion completed successfully!\n")
	fmt.Printf("You can now use the SQLite backend with: -config-backend sqlite -config %s\n", *sqliteFile)
}

func saveSQLite(dbPath string, configData *config.ConfigData) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	provider, err := config.NewSQLiteProvider(dbPath)
	if err != nil {
		return fmt.Errorf("failed to create SQLite provider: %w", err)
	}
	defer provider.Close()

	if err := provider.SaveConfig(configData); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	return nil
}

func printConfigSummary(c *config.ConfigData) {
	fmt.Println("\nConfiguration Summary:")
	if c.Network.Source == config.SourcePostgres {
		fmt.Printf("Network: postgres table %s\n", c.Network.Table)
	} else {
		fmt.Printf("Network: %s %s\n", c.Network.Source, c.Network.Path)
	}
	fmt.Printf("Rasters:\n  - elevation: %s\n  - accumulation: %s\n", c.Rasters.Elevation, c.Rasters.Accumulation)
	if c.Selection.Rivers > 0 {
		fmt.Printf("Selection: %d rivers, seed %d\n", c.Selection.Rivers, c.Selection.Seed)
	} else {
		fmt.Printf("Selection: all rivers\n")
	}

	fmt.Printf("\nSinks:\n")
	if c.Sinks.CSV != nil {
		fmt.Printf("  - CSV: %s\n", c.Sinks.CSV.Dir)
	}
	if c.Sinks.MsgPack != nil {
		fmt.Printf("  - MessagePack: %s (%s)\n", c.Sinks.MsgPack.Dir, c.Sinks.MsgPack.Compression)
	}
	if c.Sinks.SQLite != nil {
		fmt.Printf("  - SQLite: %s\n", c.Sinks.SQLite.Path)
	}
	if c.Sinks.Postgres != nil {
		fmt.Printf("  - PostgreSQL\n")
	}
	if c.Sinks.ObjectStore != nil {
		fmt.Printf("  - Object store: %s/%s\n", c.Sinks.ObjectStore.Endpoint, c.Sinks.ObjectStore.Bucket)
	}
	if c.NetworkExport.Neo4j != nil {
		fmt.Printf("\nNetwork export: neo4j %s\n", c.NetworkExport.Neo4j.URI)
	}
}
