package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vfcurate/internal/config"
	"vfcurate/internal/forcefield"
	"vfcurate/internal/msm"
	"vfcurate/internal/qcarchive"
)

var (
	msmForceField string
	msmOutput     string
	msmDataset    string
	msmWorkDir    string
	msmArchiveURL string
	msmCachePath  string
)

var msmCmd = &cobra.Command{
	Use:   "msm",
	Short: "Derive bond and angle parameters from archived Hessians",
	Long: `Runs the modified Seminario method over every Hessian in the
optimization dataset and replaces the bond and angle values of the
force field with the per-parameter means. Records without a usable
Hessian are skipped and counted.`,
	RunE: runMSM,
}

func init() {
	msmCmd.Flags().StringVarP(&msmForceField, "initial-force-field", "f", "", "path to the initial OFFXML force field (required)")
	msmCmd.Flags().StringVarP(&msmOutput, "output", "o", "", "path for the updated OFFXML force field (required)")
	msmCmd.Flags().StringVarP(&msmDataset, "optimization-dataset", "d", "", "path to the optimization dataset (required)")
	msmCmd.Flags().StringVarP(&msmWorkDir, "working-directory", "w", "", "directory for intermediate files")
	defaults := config.DefaultConfig()
	msmCmd.Flags().StringVar(&msmArchiveURL, "archive-url", defaults.ArchiveURL, "base URL of the record archive")
	msmCmd.Flags().StringVar(&msmCachePath, "cache", defaults.CachePath, "path to the record cache; empty disables caching")
	_ = msmCmd.MarkFlagRequired("initial-force-field")
	_ = msmCmd.MarkFlagRequired("output")
	_ = msmCmd.MarkFlagRequired("optimization-dataset")
}

func runMSM(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ds, err := qcarchive.ParseFile(msmDataset)
	if err != nil {
		return err
	}
	logger.Info("loaded optimization records", zap.Int("n", ds.NResults()))

	ff, err := forcefield.ParseFile(msmForceField)
	if err != nil {
		return err
	}
	labeler, err := forcefield.NewMatcher(ff)
	if err != nil {
		return err
	}

	client, cleanup, err := archiveClient(msmArchiveURL, msmCachePath)
	if err != nil {
		return err
	}
	defer cleanup()
	ds.WithClient(client)

	if err := msm.UpdateForceField(ctx, ds, ff, labeler, msm.Options{
		WorkingDir: msmWorkDir,
		Logger:     logger,
	}); err != nil {
		return err
	}

	if err := ff.ToFile(msmOutput); err != nil {
		return err
	}
	logger.Info("wrote updated force field", zap.String("path", msmOutput))
	return nil
}
