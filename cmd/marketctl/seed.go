package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/spf13/cobra"

	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/market"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/store"
)

type seedDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type seedDBCloser interface {
	seedDB
	Close()
}

// Testable variables for main()
var openDBFn = func(ctx context.Context) (seedDBCloser, error) {
	return store.NewPostgresPool(ctx)
}

func newSeedCmd() *cobra.Command {
	var (
		file      string
		truncateF bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load item fixtures into the marketplace database",
		Long: `Load a JSON array of items into the Postgres database that the data
gateway serves. Existing rows with the same id are updated, so re-running
a fixture file is safe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			db, err := openDBFn(ctx)
			if err != nil {
				return fmt.Errorf("db: %w", err)
			}
			defer db.Close()

			n, err := runSeed(ctx, db, file, truncateF, nil, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d items from %s\n", n, file)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the item fixtures JSON (required)")
	cmd.Flags().BoolVar(&truncateF, "truncate", false, "delete existing items before seeding")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

const createItemsTableSQL = `
CREATE TABLE IF NOT EXISTS items (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT 'misc',
	price DOUBLE PRECISION NOT NULL DEFAULT 0,
	stock_quantity INTEGER NOT NULL DEFAULT 0,
	owner_id TEXT NOT NULL DEFAULT '',
	owner_shop_name TEXT NOT NULL DEFAULT '',
	biome TEXT NOT NULL DEFAULT '',
	direction TEXT NOT NULL DEFAULT '',
	warp_command TEXT NOT NULL DEFAULT '',
	last_verified_at TIMESTAMPTZ,
	verified_by TEXT NOT NULL DEFAULT ''
)`

const upsertItemSQL = `
INSERT INTO items (
	id, name, category, price, stock_quantity, owner_id, owner_shop_name,
	biome, direction, warp_command, last_verified_at, verified_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	category = EXCLUDED.category,
	price = EXCLUDED.price,
	stock_quantity = EXCLUDED.stock_quantity,
	owner_id = EXCLUDED.owner_id,
	owner_shop_name = EXCLUDED.owner_shop_name,
	biome = EXCLUDED.biome,
	direction = EXCLUDED.direction,
	warp_command = EXCLUDED.warp_command,
	last_verified_at = EXCLUDED.last_verified_at,
	verified_by = EXCLUDED.verified_by`

func runSeed(
	ctx context.Context,
	db seedDB,
	file string,
	truncate bool,
	readFile func(name string) ([]byte, error),
	logf func(format string, args ...any),
) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("db required")
	}
	if readFile == nil {
		readFile = os.ReadFile
	}
	if logf == nil {
		logf = log.Printf
	}

	data, err := readFile(file)
	if err != nil {
		return 0, fmt.Errorf("read fixtures %s: %w", file, err)
	}
	var items []market.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return 0, fmt.Errorf("parse fixtures %s: %w", file, err)
	}

	if _, err := db.Exec(ctx, createItemsTableSQL); err != nil {
		return 0, fmt.Errorf("ensure items table: %w", err)
	}
	if truncate {
		if _, err := db.Exec(ctx, `DELETE FROM items`); err != nil {
			return 0, fmt.Errorf("clear items: %w", err)
		}
	}

	for i, item := range items {
		if strings.TrimSpace(item.ID) == "" {
			return i, fmt.Errorf("fixture %d: missing id", i)
		}
		if _, err := db.Exec(ctx, upsertItemSQL,
			item.ID, item.Name, item.Category, item.Price, item.StockQuantity,
			item.OwnerID, item.OwnerShopName, item.Biome, item.Direction,
			item.WarpCommand, item.LastVerifiedAt, item.VerifiedBy,
		); err != nil {
			return i, fmt.Errorf("upsert %s: %w", item.ID, err)
		}
	}

	logf("seeded %d items from %s", len(items), file)
	return len(items), nil
}
