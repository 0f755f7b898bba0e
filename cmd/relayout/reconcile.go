package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/relayout/internal/api"
	"github.com/jackzampolin/relayout/internal/compare"
	"github.com/jackzampolin/relayout/internal/config"
	"github.com/jackzampolin/relayout/internal/reclassify"
	"github.com/jackzampolin/relayout/internal/types"
)

// reconcileInput is the offline input document. Either inside/outside are
// given directly, or fragments are classified against regions first.
type reconcileInput struct {
	Regions   []types.Region   `json:"regions"`
	Inside    []types.Fragment `json:"inside"`
	Outside   []types.Fragment `json:"outside"`
	Fragments []types.Fragment `json:"fragments"`
	// ScaleX and ScaleY map fragment coordinates to region coordinates.
	ScaleX float64 `json:"scale_x"`
	ScaleY float64 `json:"scale_y"`
}

type reconcileOutput struct {
	InsideCount  int            `json:"inside_count" yaml:"inside_count"`
	OutsideCount int            `json:"outside_count" yaml:"outside_count"`
	Regions      []types.Region `json:"regions" yaml:"regions"`
}

var reconcileVerbose bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <file.json|->",
	Short: "Reconcile regions and text offline",
	Long: `Run the reclassification passes over a JSON file without a server.

The file holds the detected regions plus the page text, either already
split into inside and outside fragments:

  {"regions": [...], "inside": [...], "outside": [...]}

or as raw fragments that are first classified against the regions,
optionally scaled into region coordinates:

  {"regions": [...], "fragments": [...], "scale_x": 2, "scale_y": 2}

Thresholds and label tables come from the reclassify and compare
sections of the config file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		cfgMgr, err := loadConfig(h)
		if err != nil {
			return err
		}

		in, err := readReconcileInput(args[0])
		if err != nil {
			return err
		}

		level := slog.LevelWarn
		if reconcileVerbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		out, err := runReconcile(in, cfgMgr.Get(), logger)
		if err != nil {
			return err
		}
		return api.Output(out)
	},
}

func init() {
	reconcileCmd.Flags().BoolVarP(&reconcileVerbose, "verbose", "v", false, "Log per-pass region counts to stderr")
	rootCmd.AddCommand(reconcileCmd)
}

func readReconcileInput(path string) (*reconcileInput, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var in reconcileInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &in, nil
}

func runReconcile(in *reconcileInput, cfg *config.Config, logger *slog.Logger) (*reconcileOutput, error) {
	if err := types.ValidateRegions(in.Regions); err != nil {
		return nil, err
	}

	inside, outside := in.Inside, in.Outside
	if len(in.Fragments) > 0 {
		if len(inside) > 0 || len(outside) > 0 {
			return nil, errors.New("give either fragments or inside/outside, not both")
		}
		sx, sy := in.ScaleX, in.ScaleY
		if sx == 0 {
			sx = 1
		}
		if sy == 0 {
			sy = 1
		}
		split := compare.Classify(compare.Normalize(in.Fragments, sx, sy), in.Regions, cfg.Compare.Threshold)
		inside, outside = split.Inside, split.Outside
	}

	rc, err := cfg.ReclassifyConfig()
	if err != nil {
		return nil, err
	}
	r, err := reclassify.New(rc, logger)
	if err != nil {
		return nil, err
	}
	regions, err := r.Run(in.Regions, inside, outside)
	if err != nil {
		return nil, err
	}

	return &reconcileOutput{
		InsideCount:  len(inside),
		OutsideCount: len(outside),
		Regions:      regions,
	}, nil
}
