package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/spray-advisory/internal/domain"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// FieldCmd returns the field command group.
func FieldCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "field",
		Short: "Show or edit the registered field",
	}
	cmd.AddCommand(fieldShowCmd(), fieldSetCmd(), fieldDeleteCmd())
	return cmd
}

func fieldShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the registered field",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeFn, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			f, ok := a.Fields.Field()
			if !ok {
				return domain.ErrNoField
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), f)
			}
			printField(cmd.OutOrStdout(), f)
			return nil
		},
	}
}

func fieldSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create the field or update the given attributes",
		Long: `Create the field on first use, or update only the attributes passed.

Usage:
  sprayctl field set --name "North plot" --lat 18.52 --lng 73.86 --place "Pune"
  sprayctl field set --polygon plot.geojson --area 1.5`,
		RunE: runFieldSet,
	}
	cmd.Flags().String("name", "", "field name")
	cmd.Flags().Float64("lat", 0, "latitude")
	cmd.Flags().Float64("lng", 0, "longitude")
	cmd.Flags().String("place", "", "place label")
	cmd.Flags().Float64("area", 0, "area")
	cmd.Flags().String("polygon", "", "GeoJSON polygon file")
	return cmd
}

func runFieldSet(cmd *cobra.Command, _ []string) error {
	in, err := fieldInputFromFlags(cmd)
	if err != nil {
		return err
	}

	a, closeFn, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	f, err := a.Fields.CreateOrUpdate(cmd.Context(), in)
	if err != nil {
		return err
	}
	if wantJSON(cmd) {
		return printJSON(cmd.OutOrStdout(), f)
	}
	printField(cmd.OutOrStdout(), f)
	return nil
}

// fieldInputFromFlags sets only the attributes the user passed.
func fieldInputFromFlags(cmd *cobra.Command) (domain.FieldInput, error) {
	var in domain.FieldInput
	flags := cmd.Flags()
	if flags.Changed("name") {
		v, _ := flags.GetString("name")
		in.Name = &v
	}
	if flags.Changed("lat") {
		v, _ := flags.GetFloat64("lat")
		in.Latitude = &v
	}
	if flags.Changed("lng") {
		v, _ := flags.GetFloat64("lng")
		in.Longitude = &v
	}
	if flags.Changed("place") {
		v, _ := flags.GetString("place")
		in.PlaceText = &v
	}
	if flags.Changed("area") {
		v, _ := flags.GetFloat64("area")
		in.AreaUnit = &v
	}
	if flags.Changed("polygon") {
		path, _ := flags.GetString("polygon")
		data, err := os.ReadFile(path)
		if err != nil {
			return domain.FieldInput{}, err
		}
		if !json.Valid(data) {
			return domain.FieldInput{}, fmt.Errorf("%w: %s is not JSON", domain.ErrInvalidField, path)
		}
		in.PolygonGeoJSON = data
	}
	return in, nil
}

func fieldDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the registered field",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, closeFn, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := a.Fields.Delete(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "field deleted")
			return nil
		},
	}
}

func printField(w io.Writer, f domain.Field) {
	fmt.Fprintf(w, "%s  %s\n", color.New(color.Bold).Sprint(f.Name), f.PlaceText)
	fmt.Fprintf(w, "  location: %.5f, %.5f\n", f.Latitude, f.Longitude)
	if f.AreaUnit != nil {
		fmt.Fprintf(w, "  area: %g\n", *f.AreaUnit)
	}
	if len(f.PolygonGeoJSON) > 0 {
		fmt.Fprintln(w, "  boundary: yes")
	}
	if f.Dirty {
		fmt.Fprintln(w, color.New(color.FgYellow).Sprint("  not synced"))
	}
}
