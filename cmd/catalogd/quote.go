package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucerna/catalog-engine/internal/export"
	"github.com/lucerna/catalog-engine/internal/pricing"
)

var (
	quoteMultiplier float64
	quoteCurrency   string
	quoteOut        string
)

var quoteCmd = &cobra.Command{
	Use:   "quote [code ...]",
	Short: "Build a priced quote from product codes",
	Long: `Quote looks up each code, applies the price multiplier, and prints the
result. Codes come from the arguments, or from stdin one per line when no
arguments are given. With --out the quote is written as an Excel workbook;
codes that match nothing become warning rows instead of failing the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lines := args
		if len(lines) == 0 {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines = append(lines, scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				return err
			}
		}

		d, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		builder := pricing.NewQuoteBuilder(d.products)
		quote, err := builder.Build(cmd.Context(), lines, quoteMultiplier, quoteCurrency)
		if err != nil {
			return err
		}

		if quoteOut != "" {
			data, err := export.BuildQuoteWorkbook(quote)
			if err != nil {
				return err
			}
			if err := os.WriteFile(quoteOut, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d rows, %d missing)\n", quoteOut, len(quote.Rows), quote.Missing)
			return nil
		}

		for _, row := range quote.Rows {
			if row.NotFound {
				fmt.Printf("%-20s NOT FOUND\n", row.Line)
				continue
			}
			fmt.Printf("%-20s %s\n", strings.Join(row.Product.Codes, ", "), row.FinalPrice)
		}
		if quote.Missing > 0 {
			fmt.Printf("%d code(s) not found\n", quote.Missing)
		}
		return nil
	},
}

func init() {
	quoteCmd.Flags().Float64Var(&quoteMultiplier, "multiplier", 1.0, "price multiplier applied to catalog prices")
	quoteCmd.Flags().StringVar(&quoteCurrency, "currency", "€", "target currency symbol")
	quoteCmd.Flags().StringVar(&quoteOut, "out", "", "write an .xlsx workbook to this path")
	rootCmd.AddCommand(quoteCmd)
}
