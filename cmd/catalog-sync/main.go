package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/tendant/content-extensions/internal/logger"
	"github.com/tendant/content-extensions/pkg/extensions/catalog"
	"github.com/tendant/content-extensions/pkg/extensions/config"
)

func main() {
	_ = godotenv.Load()

	upload := flag.String("upload", "", "upload a manifest file into manifest storage before syncing")
	verbose := flag.Bool("v", false, "log catalog progress")
	flag.Parse()

	serverConfig, err := config.Load(config.WithEnv(""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewNop()
	if *verbose {
		if log, err = logger.New(serverConfig.LoggerMode()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
			os.Exit(1)
		}
	}

	report, err := run(context.Background(), serverConfig, log, *upload)
	log.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Catalog sync failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
		os.Exit(1)
	}
	if len(report.Rejected) > 0 {
		os.Exit(2)
	}
}

func run(ctx context.Context, serverConfig *config.ServerConfig, log *logger.Logger, upload string) (*catalog.SyncReport, error) {
	comps, err := serverConfig.BuildService(ctx, log)
	if err != nil {
		return nil, err
	}
	defer comps.Close()

	if upload != "" {
		f, err := os.Open(upload)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		key := serverConfig.ManifestStorage.Prefix + filepath.Base(upload)
		if err := comps.Manifests.Put(ctx, key, f); err != nil {
			return nil, fmt.Errorf("upload %s: %w", key, err)
		}
	}

	return comps.Catalog.Sync(ctx)
}
