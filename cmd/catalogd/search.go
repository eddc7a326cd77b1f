package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucerna/catalog-engine/internal/domain"
	"github.com/lucerna/catalog-engine/internal/pricing"
)

var searchCmd = &cobra.Command{
	Use:   "search <code>",
	Short: "Search stored products by code substring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		products, err := d.products.SearchByCode(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(products) == 0 {
			fmt.Printf("no products match %q\n", args[0])
			return nil
		}
		for _, p := range products {
			printProduct(p)
		}
		return nil
	},
}

func printProduct(p *domain.Product) {
	fmt.Printf("%s  [%s]\n", strings.Join(p.Codes, ", "), p.CatalogName)
	if p.Name != nil {
		fmt.Printf("  name:  %s\n", *p.Name)
	}
	if p.Price != nil {
		sym := "€"
		if p.Currency != nil {
			sym = *p.Currency
		}
		fmt.Printf("  price: %s\n", pricing.FormatPrice(*p.Price, sym))
	}
	fmt.Printf("  page:  %d\n", p.PageNumber)
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
