package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/banshee-data/validation.report/internal/api"
	"github.com/banshee-data/validation.report/internal/config"
	"github.com/banshee-data/validation.report/internal/db"
	"github.com/banshee-data/validation.report/internal/version"
	"github.com/banshee-data/validation.report/internal/vru/align"
	"github.com/banshee-data/validation.report/internal/vru/latency"
	"github.com/banshee-data/validation.report/internal/vru/monitor"
	"github.com/banshee-data/validation.report/internal/vru/session"
	"github.com/banshee-data/validation.report/internal/vru/storage/sqlite"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbPath     = flag.String("db", "validation_data.db", "path to sqlite db")
	tuningPath = flag.String("tuning", "", "optional JSON tuning config")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	log.Printf("validation-report %s", version.String())

	tuning := config.EmptyTuningConfig()
	if *tuningPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	events := sqlite.NewEventStore(database.DB)
	reports := sqlite.NewReportStore(database.DB)

	analyzer := latency.NewAnalyzer(latency.Config{
		Capacity:               tuning.GetLatencyCapacity(),
		Percentile:             tuning.GetLatencyPercentile(),
		MinSamples:             tuning.GetLatencyMinSamples(),
		RecomputeBatch:         tuning.GetLatencyRecomputeBatch(),
		BaseThresholdMs:        tuning.GetBaseThresholdMs(),
		BaseThresholdMsByClass: tuning.GetBaseThresholdMsByClass(),
	})

	orchestrator := session.NewOrchestrator(events, analyzer, session.Config{
		Workers:      tuning.GetWorkers(),
		FetchRetries: tuning.GetFetchRetries(),
		Align: align.Params{
			StrictClassMatching:    tuning.GetStrictClassMatching(),
			ClusterWindowMs:        tuning.GetClusterWindowMs(),
			BurstDensityPerSec:     tuning.GetBurstDensityPerSec(),
			ConfidenceVarianceHigh: tuning.GetConfidenceVarianceHigh(),
		},
	})

	server := api.NewServer(api.ServerConfig{
		Address:      *listen,
		Orchestrator: orchestrator,
		Events:       events,
		Reports:      reports,
		Tuning:       tuning,
		LatencyDebug: monitor.NewLatencyDebug(analyzer),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
