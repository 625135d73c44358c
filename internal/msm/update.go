package msm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"vfcurate/internal/curate"
	"vfcurate/internal/forcefield"
)

// Options configures UpdateForceField.
type Options struct {
	// WorkingDir, when non-empty, receives intermediate files: the
	// per-parameter raw values and the identifiers of records whose
	// Hessians could not be processed. Created if absent.
	WorkingDir string

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// accumulated raw values per parameter identifier.
type valueSet struct {
	BondEq  map[string][]float64 `json:"bond_eq"`
	BondK   map[string][]float64 `json:"bond_k"`
	AngleEq map[string][]float64 `json:"angle_eq"`
	AngleK  map[string][]float64 `json:"angle_k"`
}

// UpdateForceField recalculates the bond and angle parameters of ff
// from the Hessians carried by the dataset's records. Every labeled
// bond and angle site contributes the Seminario-derived value to its
// assigned parameter; each parameter is then set to the mean over all
// its contributions. ff is modified in place.
//
// Records without a Hessian, and records whose Hessian fails to
// decompose, are skipped and counted rather than failing the run.
func UpdateForceField(
	ctx context.Context,
	ds curate.Dataset,
	ff *forcefield.ForceField,
	labeler forcefield.Labeler,
	opts Options,
) error {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	records, err := ds.ToRecords(ctx)
	if err != nil {
		return err
	}
	log.Info("calculating seminario parameters", zap.Int("records", len(records)))

	values := valueSet{
		BondEq:  make(map[string][]float64),
		BondK:   make(map[string][]float64),
		AngleEq: make(map[string][]float64),
		AngleK:  make(map[string][]float64),
	}
	var errored []string
	for _, rm := range records {
		if len(rm.Record.Hessian) == 0 {
			errored = append(errored, rm.Record.ID)
			continue
		}
		params, err := Calculate(rm.Molecule, rm.Record.Hessian)
		if err != nil {
			log.Debug("skipping record", zap.String("record", rm.Record.ID), zap.Error(err))
			errored = append(errored, rm.Record.ID)
			continue
		}
		labels, err := labeler.LabelMolecule(rm.Molecule)
		if err != nil {
			return fmt.Errorf("msm: labeling record %s: %w", rm.Record.ID, err)
		}

		for site, id := range labels[forcefield.TypeBonds] {
			if eq, ok := params.BondLengths[site]; ok {
				values.BondEq[id] = append(values.BondEq[id], eq)
				values.BondK[id] = append(values.BondK[id], params.BondConstants[site])
			}
		}
		for site, id := range labels[forcefield.TypeAngles] {
			if eq, ok := params.AngleValues[site]; ok {
				values.AngleEq[id] = append(values.AngleEq[id], eq)
				values.AngleK[id] = append(values.AngleK[id], params.AngleConstants[site])
			}
		}
	}
	log.Info("seminario calculations done",
		zap.Int("errored", len(errored)),
		zap.Int("bond parameters", len(values.BondEq)),
		zap.Int("angle parameters", len(values.AngleEq)))

	if opts.WorkingDir != "" {
		if err := writeIntermediates(opts.WorkingDir, values, errored); err != nil {
			return err
		}
	}

	bonds, err := ff.Handler(forcefield.TypeBonds)
	if err != nil {
		return err
	}
	for _, id := range sortedKeys(values.BondEq) {
		p, ok := bonds.ParameterByID(id)
		if !ok {
			continue
		}
		p.SetQuantity("length", stat.Mean(values.BondEq[id], nil), "angstrom")
		p.SetQuantity("k", stat.Mean(values.BondK[id], nil), "kilocalorie / mole / angstrom ** 2")
	}

	angles, err := ff.Handler(forcefield.TypeAngles)
	if err != nil {
		return err
	}
	for _, id := range sortedKeys(values.AngleEq) {
		p, ok := angles.ParameterByID(id)
		if !ok {
			continue
		}
		p.SetQuantity("angle", stat.Mean(values.AngleEq[id], nil), "degree")
		p.SetQuantity("k", stat.Mean(values.AngleK[id], nil), "kilocalorie / mole / radian ** 2")
	}

	return nil
}

func writeIntermediates(dir string, values valueSet, errored []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("msm: creating working directory: %w", err)
	}
	raw, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "seminario_parameters.json"), raw, 0o644); err != nil {
		return err
	}
	if len(errored) > 0 {
		raw, err := json.MarshalIndent(errored, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, "errored_records.json"), raw, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
