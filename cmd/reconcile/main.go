/*
main.go - Command-line reconciliation runner

PURPOSE:
  Runs one reconciliation from extract CSV files on disk and saves the
  result as a named batch, without going through the HTTP API. Useful for
  scripted month-end runs and for backfilling historical extracts.

COMMAND-LINE FLAGS:
  -db            SQLite database path (default: commission.db, env DB_PATH)
  -channel       normal or fidium (default: normal)
  -name          Batch name (required)
  -new-installs  New-installs CSV path (normal channel)
  -detail        Detail CSV path (normal channel)
  -migrations    Migrations CSV path (normal channel, optional)
  -rows          Extract CSV path (fidium channel)

EXAMPLES:
  # Normal channel month-end
  ./reconcile -name="March 2026" \
      -new-installs=ni.csv -detail=detail.csv -migrations=mig.csv

  # Fidium channel
  ./reconcile -channel=fidium -name="March 2026 Fidium" -rows=fidium.csv

SEE ALSO:
  - normal/reconcile.go, fidium/reconcile.go: The runs this drives
  - cmd/server/main.go: The HTTP surface over the same engine
*/
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/warp/commission-engine/extract"
	"github.com/warp/commission-engine/fidium"
	"github.com/warp/commission-engine/normal"
	"github.com/warp/commission-engine/payroll"
	"github.com/warp/commission-engine/store/sqlite"
)

func main() {
	_ = godotenv.Load()

	dbPath := flag.String("db", envStr("DB_PATH", "commission.db"), "SQLite database path")
	channel := flag.String("channel", "normal", "Channel to reconcile (normal, fidium)")
	name := flag.String("name", "", "Batch name")
	newInstalls := flag.String("new-installs", "", "New-installs CSV path")
	detail := flag.String("detail", "", "Detail CSV path")
	migrations := flag.String("migrations", "", "Migrations CSV path")
	rowsPath := flag.String("rows", "", "Fidium extract CSV path")
	flag.Parse()

	if *name == "" {
		log.Fatal("-name is required")
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	var draft *payroll.Draft
	switch *channel {
	case "normal":
		draft, err = runNormal(ctx, store, *newInstalls, *detail, *migrations)
	case "fidium":
		draft, err = runFidium(ctx, store, *rowsPath)
	default:
		log.Fatalf("Unknown channel %q", *channel)
	}
	if err != nil {
		log.Fatalf("Reconciliation failed: %v", err)
	}

	batch, lines, err := payroll.SaveDraft(ctx, store, *name, draft)
	if err != nil {
		if err == payroll.ErrEmptyDraft {
			log.Fatal("Reconciliation produced no payable lines; nothing saved")
		}
		log.Fatalf("Failed to save batch: %v", err)
	}

	log.Printf("Saved batch %q (%s) with %d lines", batch.Name, batch.ID, len(lines))
	for _, line := range lines {
		log.Printf("  %-24s accounts=%-3d personal=%s manager=%s total=%s",
			line.Name, line.Accounts,
			line.PersonalTotal.String(), line.ManagerTotal.String(), line.GrandTotal.String())
	}
}

func runNormal(ctx context.Context, store *sqlite.Store, niPath, detailPath, migPath string) (*payroll.Draft, error) {
	if niPath == "" || detailPath == "" {
		log.Fatal("-new-installs and -detail are required for the normal channel")
	}

	ni, err := extract.ReadCSVFile(niPath)
	if err != nil {
		return nil, err
	}
	detail, err := extract.ReadCSVFile(detailPath)
	if err != nil {
		return nil, err
	}
	var migrations []extract.Record
	if migPath != "" {
		migrations, err = extract.ReadCSVFile(migPath)
		if err != nil {
			return nil, err
		}
	}

	rec := normal.NewReconciler(store, store)
	return rec.Reconcile(ctx, normal.Extracts{
		NewInstalls: ni,
		Detail:      detail,
		Migrations:  migrations,
	})
}

func runFidium(ctx context.Context, store *sqlite.Store, rowsPath string) (*payroll.Draft, error) {
	if rowsPath == "" {
		log.Fatal("-rows is required for the fidium channel")
	}

	rows, err := extract.ReadCSVFile(rowsPath)
	if err != nil {
		return nil, err
	}

	rec := fidium.NewReconciler(store, store)
	return rec.Reconcile(ctx, rows)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
