package forcebalance

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vfcurate/internal/forcefield"
	"vfcurate/internal/qcarchive"
)

// Angle rules whose equilibrium value must stay linear: only the force
// constant is released for fitting.
var linearAngleSMIRKS = map[string]struct{}{
	"[*:1]~[#6X2:2]~[*:3]":    {},
	"[*:1]~[#7X2:2]~[*:3]":    {},
	"[*:1]~[#7X2:2]~[#7X1:3]": {},
	"[*:1]=[#16X2:2]=[*:3]":   {},
}

// Options configures Generate.
type Options struct {
	// Tag names the optimization. Empty means a fresh UUID.
	Tag string

	// ForceFieldPath locates the initial OFFXML file.
	ForceFieldPath string

	// ValenceSMIRKS maps "Bonds" and "Angles" to the selected patterns.
	ValenceSMIRKS map[string][]string

	// TorsionSMIRKS maps "ProperTorsions" and "ImproperTorsions" to the
	// selected patterns.
	TorsionSMIRKS map[string][]string

	// OutputDir is the root of the generated input tree.
	OutputDir string

	// SmartsToExclude and SmilesToExclude are optional paths to
	// newline-separated exclusion lists applied to both training sets.
	SmartsToExclude string
	SmilesToExclude string

	MaxIterations int // defaults to 50
	Port          int // work-queue port, defaults to 55387

	Logger *zap.Logger
}

// LoadTrainingData applies the SMARTS and SMILES exclusion lists to
// both training collections in place. SMILES exclusion matches on the
// stored entry CMILES; SMARTS exclusion resolves the records and drops
// every entry whose molecule matches any excluded pattern.
func LoadTrainingData(
	ctx context.Context,
	optimization, torsion *qcarchive.Collection,
	smartsPath, smilesPath string,
	log *zap.Logger,
) error {
	if log == nil {
		log = zap.NewNop()
	}
	smarts, err := readLines(smartsPath)
	if err != nil {
		return err
	}
	smiles, err := readLines(smilesPath)
	if err != nil {
		return err
	}
	if len(smarts) == 0 && len(smiles) == 0 {
		return nil
	}

	for name, c := range map[string]*qcarchive.Collection{
		"torsion":      torsion,
		"optimization": optimization,
	} {
		before := c.NResults()
		if err := filterCollection(ctx, c, smarts, smiles); err != nil {
			return fmt.Errorf("forcebalance: filtering %s training set: %w", name, err)
		}
		log.Info("filtered training set",
			zap.String("set", name),
			zap.Int("before", before),
			zap.Int("after", c.NResults()))
	}
	return nil
}

func filterCollection(ctx context.Context, c *qcarchive.Collection, smarts, smiles []string) error {
	excluded := make(map[string]struct{})

	if len(smiles) > 0 {
		bad := make(map[string]struct{}, len(smiles))
		for _, s := range smiles {
			bad[s] = struct{}{}
		}
		for _, entries := range c.Entries {
			for _, e := range entries {
				if _, ok := bad[e.CMILES]; ok {
					excluded[e.RecordID] = struct{}{}
				}
			}
		}
	}

	if len(smarts) > 0 {
		records, err := c.ToRecords(ctx)
		if err != nil {
			return err
		}
		for _, rm := range records {
			for _, pattern := range smarts {
				hit, err := forcefield.MatchesPattern(rm.Molecule, pattern)
				if err != nil {
					return err
				}
				if hit {
					excluded[rm.Record.ID] = struct{}{}
					break
				}
			}
		}
	}

	if len(excluded) == 0 {
		return nil
	}
	keep := make(map[string]struct{})
	for _, entries := range c.Entries {
		for _, e := range entries {
			if _, bad := excluded[e.RecordID]; !bad {
				keep[e.RecordID] = struct{}{}
			}
		}
	}
	c.Retain(keep)
	return nil
}

// Generate assembles the complete fitting input: the optimization
// schema document under <out>/schemas/optimizations/<tag>.json and the
// per-target input tree under <out>/<tag>/. The returned schema is the
// document that was written.
//
// Torsion patterns absent from the force field are skipped; their
// records may support parameters that a later schema revision removed.
func Generate(
	ctx context.Context,
	optimization, torsion *qcarchive.Collection,
	opts Options,
) (*Schema, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	tag := opts.Tag
	if tag == "" {
		tag = uuid.NewString()
	}
	maxIterations := opts.MaxIterations
	if maxIterations == 0 {
		maxIterations = 50
	}
	port := opts.Port
	if port == 0 {
		port = 55387
	}

	if err := LoadTrainingData(ctx, optimization, torsion,
		opts.SmartsToExclude, opts.SmilesToExclude, log); err != nil {
		return nil, err
	}

	ff, err := forcefield.ParseFile(opts.ForceFieldPath)
	if err != nil {
		return nil, err
	}
	if !ff.DeregisterConstraints() {
		log.Warn("no constraint handler to deregister, already unconstrained?")
	}

	var parameters []ParameterSMIRKS
	for _, smirks := range opts.ValenceSMIRKS[forcefield.TypeAngles] {
		attrs := []string{"angle", "k"}
		if _, linear := linearAngleSMIRKS[smirks]; linear {
			attrs = []string{"k"}
		}
		parameters = append(parameters, ParameterSMIRKS{
			Type: "AngleSMIRKS", SMIRKS: smirks, Attributes: attrs,
		})
	}
	for _, smirks := range opts.ValenceSMIRKS[forcefield.TypeBonds] {
		parameters = append(parameters, ParameterSMIRKS{
			Type: "BondSMIRKS", SMIRKS: smirks, Attributes: []string{"k", "length"},
		})
	}

	torsionKinds := []struct {
		handler string
		kind    string
	}{
		{forcefield.TypeProperTorsions, "ProperTorsionSMIRKS"},
		{forcefield.TypeImproperTorsions, "ImproperTorsionSMIRKS"},
	}
	for _, tk := range torsionKinds {
		handler, err := ff.Handler(tk.handler)
		if err != nil {
			return nil, err
		}
		for _, smirks := range opts.TorsionSMIRKS[tk.handler] {
			p, ok := handler.ParameterBySMIRKS(smirks)
			if !ok {
				log.Debug("skipping pattern absent from force field",
					zap.String("kind", tk.handler), zap.String("smirks", smirks))
				continue
			}
			parameters = append(parameters, ParameterSMIRKS{
				Type: tk.kind, SMIRKS: smirks, Attributes: kAttributes(p.KCount()),
			})
		}
	}

	ffPath := opts.ForceFieldPath
	if abs, err := filepath.Abs(ffPath); err == nil {
		ffPath = abs
	}

	schema := &Schema{
		ID:                tag,
		InitialForceField: ffPath,
		Stages: []Stage{{
			Optimizer: DefaultSettings(maxIterations, port),
			Targets: []Target{
				TorsionProfileTarget{
					Type:              "TorsionProfile",
					ReferenceData:     torsion,
					EnergyDenominator: 1.0,
					EnergyCutoff:      8.0,
					Extras:            map[string]string{"remote": "1"},
				},
				OptGeoTarget{
					Type:                "OptGeo",
					ReferenceData:       optimization,
					Weight:              0.01,
					BondDenominator:     0.05,
					AngleDenominator:    5.0,
					DihedralDenominator: 10.0,
					ImproperDenominator: 10.0,
					Extras:              map[string]string{"batch_size": "30", "remote": "1"},
				},
			},
			Parameters: parameters,
			ParameterHyperparameters: []Hyperparameters{
				{Type: "AngleHyperparameters", Priors: map[string]float64{"k": 100, "angle": 5}},
				{Type: "BondHyperparameters", Priors: map[string]float64{"k": 100, "length": 0.1}},
				{Type: "ProperTorsionHyperparameters", Priors: map[string]float64{"k": 5}},
				{Type: "ImproperTorsionHyperparameters", Priors: map[string]float64{"k": 5}},
			},
		}},
	}

	if err := writeInputs(schema, ff, optimization, torsion, opts.OutputDir); err != nil {
		return nil, err
	}
	log.Info("generated fitting input",
		zap.String("tag", tag),
		zap.Int("parameters", len(parameters)))
	return schema, nil
}

func kAttributes(n int) []string {
	attrs := make([]string, n)
	for i := range attrs {
		attrs[i] = fmt.Sprintf("k%d", i+1)
	}
	sort.Strings(attrs)
	return attrs
}

func writeInputs(
	schema *Schema,
	ff *forcefield.ForceField,
	optimization, torsion *qcarchive.Collection,
	outputDir string,
) error {
	schemaDir := filepath.Join(outputDir, "schemas", "optimizations")
	if err := os.MkdirAll(schemaDir, 0o755); err != nil {
		return fmt.Errorf("forcebalance: creating schema directory: %w", err)
	}
	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("forcebalance: encoding schema: %w", err)
	}
	raw = append(raw, '\n')
	if err := os.WriteFile(filepath.Join(schemaDir, schema.ID+".json"), raw, 0o644); err != nil {
		return fmt.Errorf("forcebalance: writing schema: %w", err)
	}

	fitDir := filepath.Join(outputDir, schema.ID)
	ffDir := filepath.Join(fitDir, "forcefield")
	if err := os.MkdirAll(ffDir, 0o755); err != nil {
		return err
	}
	if err := ff.ToFile(filepath.Join(ffDir, "force-field.offxml")); err != nil {
		return err
	}

	for _, target := range schema.Stages[0].Targets {
		dir := filepath.Join(fitDir, "targets", target.targetName())
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		var ref *qcarchive.Collection
		switch t := target.(type) {
		case TorsionProfileTarget:
			ref = t.ReferenceData
		case OptGeoTarget:
			ref = t.ReferenceData
		}
		if err := ref.WriteFile(filepath.Join(dir, "training-set.json")); err != nil {
			return err
		}
	}
	return nil
}

// readLines loads a newline-separated list, skipping blanks. An empty
// path yields an empty list.
func readLines(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("forcebalance: reading exclusion list: %w", err)
	}
	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out, nil
}
