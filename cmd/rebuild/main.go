package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/cmorgan83/trade-history-service/internal/config"
	"github.com/cmorgan83/trade-history-service/internal/database"
)

// Runs one wipe-and-replay rebuild of all derived state and prints the
// report as JSON. Safe to run repeatedly; identical events yield
// identical derived tables.
func main() {
	cfg := config.Load()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	report, err := db.RebuildDerived(cfg.Rebuild.TransferWindowDays)
	if err != nil {
		log.Fatalf("Rebuild failed: %v", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		log.Fatalf("Failed to encode report: %v", err)
	}
}
