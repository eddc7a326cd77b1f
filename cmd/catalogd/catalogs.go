package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var catalogsCmd = &cobra.Command{
	Use:   "catalogs",
	Short: "Manage stored catalogs",
}

var catalogsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored catalogs",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		catalogs, err := d.catalogs.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(catalogs) == 0 {
			fmt.Println("no catalogs stored")
			return nil
		}
		for _, c := range catalogs {
			fmt.Printf("%s  %-30s  %d pages  %s\n",
				c.ID, c.Name, c.PageCount, c.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

var catalogsDeleteCmd = &cobra.Command{
	Use:   "delete <catalog-id>",
	Short: "Delete a catalog and all its products",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid catalog id %q: %w", args[0], err)
		}

		d, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		catalog, err := d.catalogs.GetByID(cmd.Context(), id)
		if err != nil {
			return err
		}
		if err := d.catalogs.Delete(cmd.Context(), id); err != nil {
			return err
		}
		if catalog.FileRef != "" {
			_ = d.blobs.Delete(catalog.FileRef)
		}
		fmt.Printf("deleted %s (%s)\n", catalog.Name, id)
		return nil
	},
}

func init() {
	catalogsCmd.AddCommand(catalogsListCmd, catalogsDeleteCmd)
	rootCmd.AddCommand(catalogsCmd)
}
