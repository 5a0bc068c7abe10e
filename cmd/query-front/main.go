package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/bigdata-query/query-front/internal"
	"github.com/bigdata-query/query-front/internal/config"
	"github.com/bigdata-query/query-front/internal/log"
)

var BuildVersion = "dev"

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	flag.Parse()

	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := os.WriteFile(*configInit, config.DefaultJSON(), 0644); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	if *validate {
		if _, err := config.Load(*conf); err != nil {
			fmt.Fprintf(os.Stderr, "Validating: %s\nResult: FAIL\n  - %v\n", *conf, err)
			os.Exit(1)
		}
		fmt.Printf("Validating: %s\nResult: PASS\n", *conf)
		return
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting query-front", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	ctx := context.Background()
	front, err := internal.NewQueryFront(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create query front: %v", err)
		os.Exit(1)
	}

	if err := front.Run(); err != nil {
		log.LogError("Failed to start server: %v", err)
		os.Exit(1)
	}
}
