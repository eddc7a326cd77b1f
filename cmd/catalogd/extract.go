package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var extractName string

var extractCmd = &cobra.Command{
	Use:   "extract <catalog.pdf>",
	Short: "Extract products from a catalog PDF",
	Long: `Extract registers the PDF as a catalog, runs every page through the
vision model, and stores the normalized products, images, and image
descriptors. Page failures are recorded on the job; the run keeps going.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}

		name := extractName
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}

		d, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		svc, err := d.extractService()
		if err != nil {
			return err
		}

		var bar *progressbar.ProgressBar
		svc.OnPageDone(func(done, total int) {
			if bar == nil {
				bar = progressbar.NewOptions64(int64(total),
					progressbar.OptionSetDescription("extracting pages"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			_ = bar.Set64(int64(done))
		})

		catalog, job, err := svc.Ingest(cmd.Context(), name, data)
		if err != nil {
			return err
		}
		if bar != nil {
			_ = bar.Finish()
		}

		fmt.Printf("Catalog:  %s (%s)\n", catalog.Name, catalog.ID)
		fmt.Printf("Job:      %s  status=%s\n", job.ID, job.Status)
		fmt.Printf("Pages:    %d succeeded, %d failed of %d\n", job.SucceededPages, job.FailedPages, job.TotalPages)
		fmt.Printf("Products: %d\n", job.ProductsCreated)
		for _, w := range job.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
		if len(job.FailedPageNumbers) > 0 {
			fmt.Printf("  failed pages: %v\n", job.FailedPageNumbers)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractName, "name", "", "catalog name (defaults to the file name)")
	rootCmd.AddCommand(extractCmd)
}
