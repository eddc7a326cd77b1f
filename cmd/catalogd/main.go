// Package main provides the catalogd CLI: catalog extraction, search,
// pricing exports, and the HTTP API server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lucerna/catalog-engine/internal/config"
	"github.com/lucerna/catalog-engine/internal/extract"
	"github.com/lucerna/catalog-engine/internal/imaging"
	"github.com/lucerna/catalog-engine/internal/llm"
	"github.com/lucerna/catalog-engine/internal/observability"
	"github.com/lucerna/catalog-engine/internal/storage"
)

var (
	cfgFile string
	verbose bool

	cfg    *config.Config
	logger *observability.Logger
)

var rootCmd = &cobra.Command{
	Use:   "catalogd",
	Short: "Lighting catalog extraction and retrieval engine",
	Long: `catalogd turns supplier PDF catalogs into a searchable product database.

Use this tool to:
- Extract products from a catalog PDF with a vision model
- Search stored products by code or by photo
- Build priced quote exports from pasted codes
- Convert the prices inside a price-list PDF between currencies
- Serve the HTTP API`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real deployments set the environment directly.
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.Observability.LogLevel = "debug"
		}

		logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      cfg.Observability.LogFormat,
			ServiceName: "catalogd",
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// deps bundles the wired storage and pipeline services shared by commands.
type deps struct {
	db       *sql.DB
	blobs    storage.BlobStore
	catalogs *storage.CatalogRepository
	products *storage.ProductRepository
	images   *storage.ProductImageRepository
	jobs     *storage.JobRepository
	engine   *imaging.Engine
}

func openDeps(ctx context.Context) (*deps, error) {
	db, err := storage.Open(ctx, cfg.SQLDriver(), cfg.DatabaseDSN())
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	blobs, err := storage.NewFSStore(cfg.Blob.Root)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &deps{
		db:       db,
		blobs:    blobs,
		catalogs: storage.NewCatalogRepository(db),
		products: storage.NewProductRepository(db),
		images:   storage.NewProductImageRepository(db),
		jobs:     storage.NewJobRepository(db),
		engine:   imaging.NewEngine(nil),
	}, nil
}

func (d *deps) Close() {
	d.db.Close()
}

// extractService wires the full pipeline; it needs a configured model key.
func (d *deps) extractService() (*extract.Service, error) {
	client, err := llm.NewClient(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	return extract.NewService(
		d.catalogs, d.products, d.images, d.jobs, d.blobs,
		client, d.engine.Hasher(), logger, cfg.Extraction,
	), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
