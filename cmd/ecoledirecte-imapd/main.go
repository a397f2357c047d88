package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/edimap/ecoledirecte-imap/common/version"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/app"
	"github.com/edimap/ecoledirecte-imap/internal/gateway/config"
)

func main() {
	fmt.Printf("ecoledirecte-imap\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	cfg := config.Load()

	var logHandler slog.Handler
	if cfg.LogFormat == "json" {
		logHandler = slog.NewJSONHandler(os.Stderr, nil)
	} else {
		logHandler = slog.NewTextHandler(os.Stderr, nil)
	}
	slog.SetDefault(slog.New(logHandler))

	gw, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize ecoledirecte-imap: %v\n", err)
		os.Exit(1)
	}
	defer gw.Stop()

	if err := gw.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running ecoledirecte-imap: %v\n", err)
		os.Exit(1)
	}
}
