package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/chrissnell/riverprofile/internal/log"
	"github.com/chrissnell/riverprofile/internal/server"
	"github.com/chrissnell/riverprofile/internal/sink/sqlitestore"
	"github.com/chrissnell/riverprofile/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfgFile := flag.String("config", "config.yaml", "Path to configuration source")
	cfgBackend := flag.String("config-backend", config.BackendYAML, "Configuration backend type: 'yaml' or 'sqlite'")
	envFile := flag.String("env", ".env", "Optional dotenv file with RIVERPROFILE_* overrides")
	database := flag.String("db", "", "SQLite profile store to serve (overrides server.database)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

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
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	cfgData.ApplyEnv()

	if *database != "" {
		cfgData.Server.Database = *database
	}
	if cfgData.Server.Database == "" {
		log.Errorf("No profile store configured: set server.database, sinks.sqlite.path or -db")
		os.Exit(1)
	}

	store, err := sqlitestore.Open(cfgData.Server.Database, "")
	if err != nil {
		log.Errorf("Failed to open profile store: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(cfgData.Server.ListenAddr, strconv.Itoa(cfgData.Server.Port))
	srv := server.New(store, promhttp.Handler(), log.GetSugaredLogger())
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		log.Errorf("Server error: %v", err)
		os.Exit(1)
	}
}
