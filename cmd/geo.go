package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/propsight/market-cli/internal/geo"
)

var geoCmd = &cobra.Command{
	Use:   "geo",
	Short: "Manage district boundary data",
}

var geoLoadDistrictsCmd = &cobra.Command{
	Use:   "load-districts",
	Short: "Load postal district boundaries into the database",
	Long:  "Downloads the district boundary shapefile and loads it into the districts table for the PostGIS locator. With --file, loads a local shapefile instead.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		file, _ := cmd.Flags().GetString("file")
		if file != "" {
			return geo.LoadDistrictShapefile(ctx, pool, file)
		}

		tempDir, err := os.MkdirTemp("", "districts-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tempDir)

		return geo.ImportDistricts(ctx, pool, nil, tempDir)
	},
}

var geoLocateCmd = &cobra.Command{
	Use:   "locate <lat> <lng>",
	Short: "Resolve coordinates to the nearest districts",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		var lat, lng float64
		if _, err := fmt.Sscanf(args[0], "%f", &lat); err != nil {
			return fmt.Errorf("bad latitude %q", args[0])
		}
		if _, err := fmt.Sscanf(args[1], "%f", &lng); err != nil {
			return fmt.Errorf("bad longitude %q", args[1])
		}

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		topN, _ := cmd.Flags().GetInt("top")
		relations, err := geo.NewLocator(pool).NearestDistricts(ctx, lat, lng, topN)
		if err != nil {
			return err
		}
		for _, r := range relations {
			fmt.Printf("%-4s %-28s within=%-5t %.1fkm %s\n",
				r.Code, r.Name, r.IsWithin, r.DistanceKM, r.Segment)
		}
		return nil
	},
}

func init() {
	geoLoadDistrictsCmd.Flags().String("file", "", "load a local shapefile instead of downloading")
	geoLocateCmd.Flags().Int("top", 3, "number of districts to return")

	geoCmd.AddCommand(geoLoadDistrictsCmd, geoLocateCmd)
	rootCmd.AddCommand(geoCmd)
}
