package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/validation.report/internal/config"
	"github.com/banshee-data/validation.report/internal/db"
	"github.com/banshee-data/validation.report/internal/vru/align"
	"github.com/banshee-data/validation.report/internal/vru/latency"
	"github.com/banshee-data/validation.report/internal/vru/session"
	"github.com/banshee-data/validation.report/internal/vru/storage/sqlite"
)

func main() {
	var dbPath string
	var sessionID string
	var method string
	var toleranceMs float64
	var profile string
	var persist bool

	flag.StringVar(&dbPath, "db", "validation_data.db", "path to sqlite db")
	flag.StringVar(&sessionID, "session", "", "session ID to validate (required)")
	flag.StringVar(&method, "method", "nearest_neighbor", "alignment method")
	flag.Float64Var(&toleranceMs, "tolerance", 100, "alignment tolerance in milliseconds")
	flag.StringVar(&profile, "profile", "default", "validation criteria profile")
	flag.BoolVar(&persist, "persist", false, "also store the report in the db")
	flag.Parse()

	if sessionID == "" {
		log.Fatal("-session is required")
	}

	alignMethod, err := align.ParseMethod(method)
	if err != nil {
		log.Fatalf("invalid method: %v", err)
	}
	crit, err := config.Profile(profile)
	if err != nil {
		log.Fatalf("invalid profile: %v", err)
	}

	database, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(); err != nil {
		log.Fatalf("migrate db: %v", err)
	}

	events := sqlite.NewEventStore(database.DB)
	orchestrator := session.NewOrchestrator(events, latency.NewAnalyzer(latency.Config{}), session.Config{})

	report, err := orchestrator.ValidateSession(context.Background(), sessionID, alignMethod, crit, toleranceMs)
	if err != nil {
		log.Fatalf("validation failed: %v", err)
	}

	if persist {
		reports := sqlite.NewReportStore(database.DB)
		reportID, err := reports.Insert(context.Background(), report)
		if err != nil {
			log.Fatalf("persist report: %v", err)
		}
		fmt.Fprintf(os.Stderr, "stored report %s\n", reportID)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatalf("encode report: %v", err)
	}
}
