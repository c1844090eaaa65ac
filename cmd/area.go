package main

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fieldmap/internal/geo"
)

var (
	areaName     string
	areaBoundary string
)

var areaCmd = &cobra.Command{
	Use:   "area [lat,lng ...]",
	Short: "Compute the area of a field boundary",
	Long:  "Captures a boundary from lat,lng arguments (or a JSON file of [lon, lat] pairs) and prints the field record with its area in hectares.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var ring geo.Ring
		var err error
		if areaBoundary != "" {
			ring, err = readBoundary(areaBoundary)
		} else {
			ring, err = captureArgs(args)
		}
		if err != nil {
			return err
		}
		closed := ring.Close()
		if err := closed.ValidateClosed(); err != nil {
			return err
		}
		return writeRecord(cmd.OutOrStdout(), geo.NewFieldRecord(areaName, closed))
	},
}

// captureArgs feeds "lat,lng" arguments through a boundary capture.
func captureArgs(args []string) (geo.Ring, error) {
	c := geo.NewCapture()
	c.OnMinimumReached = func(n int) {
		zap.L().Debug("boundary has enough points", zap.Int("points", n))
	}
	for _, arg := range args {
		p, err := parseLatLng(arg)
		if err != nil {
			return nil, err
		}
		if err := c.AddPoint(p); err != nil {
			return nil, err
		}
	}
	return c.Complete()
}

func parseLatLng(s string) (geo.LonLatPoint, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return geo.LonLatPoint{}, eris.Errorf("point %q must be lat,lng", s)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return geo.LonLatPoint{}, eris.Wrapf(err, "point %q latitude", s)
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return geo.LonLatPoint{}, eris.Wrapf(err, "point %q longitude", s)
	}
	return geo.LatLng(la, ln), nil
}

func writeRecord(w io.Writer, rec geo.FieldRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func init() {
	areaCmd.Flags().StringVar(&areaName, "name", "", "field name for the record")
	areaCmd.Flags().StringVar(&areaBoundary, "boundary", "", "JSON file of [lon, lat] pairs")
	rootCmd.AddCommand(areaCmd)
}
