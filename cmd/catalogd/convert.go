package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lucerna/catalog-engine/internal/export"
	"github.com/lucerna/catalog-engine/internal/pdf"
	"github.com/lucerna/catalog-engine/internal/pricing"
)

var (
	convertFrom       string
	convertTo         string
	convertMultiplier float64
	convertOut        string
)

var convertCmd = &cobra.Command{
	Use:   "convert <pricelist.pdf>",
	Short: "Convert the prices found in a price-list PDF",
	Long: `Convert scans every page of the PDF for prices in the source currency,
applies the multiplier, and lists the converted values. No database is
touched. With --out the result is written as an Excel workbook.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		doc, err := pdf.OpenBytes(data)
		if err != nil {
			return err
		}
		defer doc.Close()

		converter, err := pricing.NewConverter(convertFrom, convertTo, convertMultiplier)
		if err != nil {
			return err
		}
		report, err := converter.ConvertDocument(cmd.Context(), doc)
		if err != nil {
			return err
		}

		if convertOut != "" {
			out, err := export.BuildConversionWorkbook(report)
			if err != nil {
				return err
			}
			if err := os.WriteFile(convertOut, out, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d prices converted)\n", convertOut, len(report.Occurrences))
			return nil
		}

		if len(report.Occurrences) == 0 {
			fmt.Printf("no %s prices found\n", convertFrom)
			return nil
		}
		for _, occ := range report.Occurrences {
			fmt.Printf("page %3d  %s -> %s\n", occ.Page,
				pricing.FormatPrice(occ.Original, report.FromSymbol), occ.Formatted)
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVar(&convertFrom, "from", "€", "source currency symbol")
	convertCmd.Flags().StringVar(&convertTo, "to", "$", "target currency symbol")
	convertCmd.Flags().Float64Var(&convertMultiplier, "multiplier", 1.0, "conversion multiplier")
	convertCmd.Flags().StringVar(&convertOut, "out", "", "write an .xlsx workbook to this path")
	rootCmd.AddCommand(convertCmd)
}
