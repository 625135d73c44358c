package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vfcurate/internal/config"
	"vfcurate/internal/curate"
	"vfcurate/internal/forcebalance"
	"vfcurate/internal/forcefield"
	"vfcurate/internal/msm"
	"vfcurate/internal/qcarchive"
)

// Selected-pattern files, consumed again by the ForceBalance stage.
const (
	optSMIRKSFile = "opt-smirks.json"
	tdSMIRKSFile  = "td-smirks.json"
)

var generateCmd = &cobra.Command{
	Use:   "generate [config]",
	Short: "Run a full curation pass and emit ForceBalance fitting input",
	Long: `Loads the run configuration, selects the bond and angle parameters
covered by the optimization dataset and the torsion parameters covered by
the torsion-drive dataset, optionally refreshes bond and angle values with
Seminario-derived estimates, and writes the complete fitting input tree.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(args[0])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	opt, err := qcarchive.ParseFile(cfg.OptDatasets[0])
	if err != nil {
		return err
	}
	logger.Info("loaded optimization records", zap.Int("n", opt.NResults()))

	td, err := qcarchive.ParseFile(cfg.TDDatasets[0])
	if err != nil {
		return err
	}
	logger.Info("loaded torsion drive records", zap.Int("n", td.NResults()))

	ff, err := forcefield.ParseFile(cfg.InitialFF)
	if err != nil {
		return err
	}
	labeler, err := forcefield.NewMatcher(ff)
	if err != nil {
		return err
	}

	client, cleanup, err := archiveClient(cfg.ArchiveURL, cfg.CachePath)
	if err != nil {
		return err
	}
	defer cleanup()
	opt.WithClient(client)
	td.WithClient(client)

	ringTorsions, err := curate.LoadRingTorsions(cfg.RingTorsions)
	if err != nil {
		return err
	}

	if err := curateData(ctx, ff, labeler, opt, td, ringTorsions, cfg.MinCoverage); err != nil {
		return err
	}

	ffPath := cfg.InitialFF
	if cfg.DoMSM {
		ffPath, err = runSeminario(ctx, cfg, opt, labeler)
		if err != nil {
			return err
		}
	}

	optSMIRKS, err := readSMIRKS(optSMIRKSFile)
	if err != nil {
		return err
	}
	tdSMIRKS, err := readSMIRKS(tdSMIRKSFile)
	if err != nil {
		return err
	}

	_, err = forcebalance.Generate(ctx, opt, td, forcebalance.Options{
		Tag:             cfg.Tag,
		ForceFieldPath:  ffPath,
		ValenceSMIRKS:   optSMIRKS,
		TorsionSMIRKS:   tdSMIRKS,
		OutputDir:       cfg.OutputDirectory,
		SmartsToExclude: cfg.SmartsToExclude,
		SmilesToExclude: cfg.SmilesToExclude,
		MaxIterations:   cfg.MaxIterations,
		Port:            cfg.Port,
		Logger:          logger,
	})
	return err
}

// curateData selects the parameters to train from the two datasets and
// writes the chosen patterns to disk: bonds and angles from optimized
// geometries, torsions from the scans.
func curateData(
	ctx context.Context,
	ff *forcefield.ForceField,
	labeler forcefield.Labeler,
	opt, td *qcarchive.Collection,
	ringTorsions curate.RingTorsions,
	minCoverage int,
) error {
	optSMIRKS, err := curate.SelectParameters(ctx, opt,
		[]string{forcefield.TypeBonds, forcefield.TypeAngles},
		ff, labeler, nil, minCoverage)
	if err != nil {
		return err
	}
	if err := writeSMIRKS(optSMIRKSFile, optSMIRKS); err != nil {
		return err
	}

	tdSMIRKS, err := curate.SelectParameters(ctx, td,
		[]string{forcefield.TypeProperTorsions, forcefield.TypeImproperTorsions},
		ff, labeler, ringTorsions, minCoverage)
	if err != nil {
		return err
	}
	return writeSMIRKS(tdSMIRKSFile, tdSMIRKS)
}

// runSeminario refreshes bond and angle parameters from the Hessians in
// the optimization dataset and writes the updated force field next to
// the rest of the output. Returns the path of the updated file.
func runSeminario(
	ctx context.Context,
	cfg *config.Config,
	opt *qcarchive.Collection,
	labeler forcefield.Labeler,
) (string, error) {
	ff, err := forcefield.ParseFile(cfg.InitialFF)
	if err != nil {
		return "", err
	}
	if err := msm.UpdateForceField(ctx, opt, ff, labeler, msm.Options{
		WorkingDir: filepath.Join(cfg.OutputDirectory, "msm"),
		Logger:     logger,
	}); err != nil {
		return "", err
	}
	out := filepath.Join(cfg.OutputDirectory, "msm.offxml")
	if err := ff.ToFile(out); err != nil {
		return "", err
	}
	logger.Info("wrote seminario force field", zap.String("path", out))
	return out, nil
}

// archiveClient builds the record client, backed by the on-disk cache
// when a cache path is given.
func archiveClient(archiveURL, cachePath string) (*qcarchive.Client, func(), error) {
	opts := []qcarchive.ClientOption{qcarchive.WithLogger(logger)}
	cleanup := func() {}
	if cachePath != "" {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating cache directory: %w", err)
		}
		cache, err := qcarchive.OpenCache(cachePath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, qcarchive.WithCache(cache))
		cleanup = func() { _ = cache.Close() }
	}
	return qcarchive.NewClient(archiveURL, opts...), cleanup, nil
}

func writeSMIRKS(path string, smirks map[string][]string) error {
	data, err := json.MarshalIndent(smirks, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func readSMIRKS(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var smirks map[string][]string
	if err := json.Unmarshal(data, &smirks); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return smirks, nil
}
