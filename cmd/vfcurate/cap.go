package main

import (
	"encoding/json"
	"math/rand"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vfcurate/internal/config"
	"vfcurate/internal/curate"
	"vfcurate/internal/forcefield"
	"vfcurate/internal/qcarchive"
)

var (
	capForceField   string
	capSize         int
	capMethod       string
	capSeed         int64
	capRingTorsions string
	capOutput       string
	capRecordsFile  string
	capArchiveURL   string
	capCachePath    string
)

var capCmd = &cobra.Command{
	Use:   "cap [dataset]",
	Short: "Bound the number of records per proper torsion parameter",
	Long: `Prunes a torsion-drive dataset so that no proper torsion parameter
is supported by more than a fixed number of records. Parameters at or
under the cap keep all of their records; the rest keep a sample chosen
by the configured method. The pruned dataset is written back out along
with the per-parameter record lists.`,
	Args: cobra.ExactArgs(1),
	RunE: runCap,
}

func init() {
	capCmd.Flags().StringVarP(&capForceField, "initial-force-field", "f", "", "path to the OFFXML force field used for labeling (required)")
	capCmd.Flags().IntVarP(&capSize, "cap-size", "n", 5, "maximum records per proper torsion parameter")
	capCmd.Flags().StringVarP(&capMethod, "method", "m", string(curate.PickRandom), "capping method: pick_heavy, pick_light, or pick_random")
	capCmd.Flags().Int64Var(&capSeed, "seed", 0, "seed for pick_random; 0 means time-seeded")
	capCmd.Flags().StringVar(&capRingTorsions, "ring-torsions", "", "path to the in-ring torsion exception list")
	capCmd.Flags().StringVarP(&capOutput, "output", "o", "", "path for the pruned dataset (default: rewrite the input)")
	capCmd.Flags().StringVar(&capRecordsFile, "records", "", "optional path for the per-parameter record lists")
	defaults := config.DefaultConfig()
	capCmd.Flags().StringVar(&capArchiveURL, "archive-url", defaults.ArchiveURL, "base URL of the record archive")
	capCmd.Flags().StringVar(&capCachePath, "cache", defaults.CachePath, "path to the record cache; empty disables caching")
	_ = capCmd.MarkFlagRequired("initial-force-field")
}

func runCap(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	datasetPath := args[0]

	ds, err := qcarchive.ParseFile(datasetPath)
	if err != nil {
		return err
	}
	logger.Info("loaded torsion drive records", zap.Int("n", ds.NResults()))

	ff, err := forcefield.ParseFile(capForceField)
	if err != nil {
		return err
	}
	labeler, err := forcefield.NewMatcher(ff)
	if err != nil {
		return err
	}

	client, cleanup, err := archiveClient(capArchiveURL, capCachePath)
	if err != nil {
		return err
	}
	defer cleanup()
	ds.WithClient(client)

	ringTorsions, err := curate.LoadRingTorsions(capRingTorsions)
	if err != nil {
		return err
	}

	var rng *rand.Rand
	if capSeed != 0 {
		rng = rand.New(rand.NewSource(capSeed))
	}

	kept, err := curate.CapTorsions(ctx, ds, labeler, curate.CapOptions{
		CapSize:      capSize,
		Method:       curate.CapMethod(capMethod),
		RingTorsions: ringTorsions,
		Rand:         rng,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	out := capOutput
	if out == "" {
		out = datasetPath
	}
	if err := ds.WriteFile(out); err != nil {
		return err
	}
	logger.Info("wrote pruned dataset", zap.String("path", out), zap.Int("n", ds.NResults()))

	if capRecordsFile != "" {
		data, err := json.MarshalIndent(kept, "", "  ")
		if err != nil {
			return err
		}
		data = append(data, '\n')
		if err := os.WriteFile(capRecordsFile, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
