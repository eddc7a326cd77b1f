package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucerna/catalog-engine/internal/imaging"
)

var (
	findThreshold  int
	findMaxResults int
)

var findImageCmd = &cobra.Command{
	Use:   "find-image <photo>",
	Short: "Find stored products that look like a photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			return fmt.Errorf("decode %s: %w", args[0], err)
		}

		d, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		descriptors, err := d.images.ListDescriptors(cmd.Context())
		if err != nil {
			return err
		}
		entries := make([]imaging.IndexEntry, 0, len(descriptors))
		for _, e := range descriptors {
			entries = append(entries, imaging.IndexEntry{
				ProductID:  e.ProductID,
				ImageID:    e.ImageID,
				Descriptor: e.Descriptor,
			})
		}

		matches, err := d.engine.Search(cmd.Context(), img, entries, findThreshold, findMaxResults)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Println("no similar products found")
			return nil
		}

		seen := map[string]bool{}
		for _, m := range matches {
			if seen[m.ProductID.String()] {
				continue
			}
			seen[m.ProductID.String()] = true
			p, err := d.products.GetByID(cmd.Context(), m.ProductID)
			if err != nil {
				continue
			}
			fmt.Printf("similarity %.0f%% (distance %d)\n", m.Similarity*100, m.Distance)
			printProduct(p)
		}
		return nil
	},
}

func init() {
	findImageCmd.Flags().IntVar(&findThreshold, "threshold", 16, "maximum descriptor distance (0-64)")
	findImageCmd.Flags().IntVar(&findMaxResults, "max", 10, "maximum results")
	rootCmd.AddCommand(findImageCmd)
}
