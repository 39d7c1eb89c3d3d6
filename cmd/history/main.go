package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"animalcensus/internal/repository/sqlite"
)

func main() {
	dbPath := flag.String("db", "data/telemetry.db", "Telemetry database path")
	measurement := flag.String("measurement", "animal_detections", "Measurement name")
	minutes := flag.Int("minutes", 60, "How many minutes back to read")
	asJSON := flag.Bool("json", false, "Print points as JSON lines")
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("Database not found: %v", err)
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	repo := sqlite.NewTelemetryRepository(db)
	ctx := context.Background()
	to := time.Now()
	from := to.Add(-time.Duration(*minutes) * time.Minute)

	points, err := repo.Range(ctx, *measurement, from, to)
	if err != nil {
		log.Fatalf("Failed to read points: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, p := range points {
			if err := enc.Encode(p); err != nil {
				log.Fatalf("Failed to encode point: %v", err)
			}
		}
		return
	}

	totals, err := repo.ClassTotals(ctx, *measurement, from, to)
	if err != nil {
		log.Fatalf("Failed to read totals: %v", err)
	}

	fmt.Printf("%s: %d points between %s and %s\n", *measurement, len(points),
		from.Format(time.DateTime), to.Format(time.DateTime))

	if len(totals) == 0 {
		fmt.Println("No animals recorded")
		return
	}

	names := make([]string, 0, len(totals))
	sum := 0
	for name, n := range totals {
		names = append(names, name)
		sum += n
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-10s %d\n", name, totals[name])
	}
	fmt.Printf("  %-10s %d\n", "total", sum)
}
