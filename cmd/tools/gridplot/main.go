// Command gridplot renders a correction grid as PNG heatmaps, one per
// correction component. The grid is read from a JSON file, the snapshot
// database or a running service's API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/speedcurrent/internal/db"
	"github.com/banshee-data/speedcurrent/internal/grid"
	"github.com/banshee-data/speedcurrent/internal/httputil"
	"github.com/banshee-data/speedcurrent/internal/units"
)

var (
	gridFile   = flag.String("file", "", "Grid JSON file (as exported by 'speedcurrent grid export')")
	dbPath     = flag.String("db-path", "", "Snapshot database to read from")
	snapshotID = flag.String("id", "", "Snapshot id (latest when empty; with -db-path)")
	apiURL     = flag.String("url", "", "Base URL of a running service, e.g. http://boat.local:8080")
	outDir     = flag.String("out", ".", "Output directory for the PNG files")
	unitsFlag  = flag.String("units", units.Knots, "Speed units for the axis (mps, knots, kmph, kph)")
	timeout    = flag.Duration("timeout", 10*time.Second, "Timeout for -url requests")
)

func main() {
	flag.Parse()

	if !units.IsValid(*unitsFlag) {
		log.Fatalf("invalid units %q, expected one of %s", *unitsFlag, units.GetValidUnitsString())
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dto, source, err := loadGrid(ctx)
	if err != nil {
		log.Fatalf("failed to load grid: %v", err)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	files, err := PlotGrid(dto, *unitsFlag, *outDir)
	if err != nil {
		log.Fatalf("failed to plot grid: %v", err)
	}
	for _, f := range files {
		fmt.Printf("%s -> %s\n", source, f)
	}
}

func loadGrid(ctx context.Context) (grid.GridDTO, string, error) {
	var dto grid.GridDTO
	switch {
	case *gridFile != "":
		data, err := os.ReadFile(*gridFile)
		if err != nil {
			return dto, "", err
		}
		if err := json.Unmarshal(data, &dto); err != nil {
			return dto, "", fmt.Errorf("decode %s: %w", *gridFile, err)
		}
		return dto, filepath.Base(*gridFile), nil

	case *dbPath != "":
		database, err := db.OpenDB(*dbPath)
		if err != nil {
			return dto, "", err
		}
		defer database.Close()
		var snap *db.GridSnapshot
		if *snapshotID != "" {
			snap, err = database.GetSnapshot(ctx, *snapshotID)
		} else {
			snap, err = database.LatestSnapshot(ctx)
		}
		if err != nil {
			return dto, "", err
		}
		if err := json.Unmarshal(snap.Grid, &dto); err != nil {
			return dto, "", fmt.Errorf("decode snapshot %s: %w", snap.ID, err)
		}
		return dto, "snapshot " + snap.ID, nil

	case *apiURL != "":
		url := strings.TrimSuffix(*apiURL, "/") + "/api/grid"
		if err := httputil.GetJSON(ctx, http.DefaultClient, url, &dto); err != nil {
			return dto, "", err
		}
		return dto, url, nil
	}
	return dto, "", fmt.Errorf("one of -file, -db-path or -url is required")
}
