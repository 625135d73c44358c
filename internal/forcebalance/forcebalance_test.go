package forcebalance

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfcurate/internal/qcarchive"
)

const fitOFFXML = `<?xml version="1.0" encoding="utf-8"?>
<SMIRNOFF version="0.3" aromaticity_model="OEAroModel_MDL">
  <Constraints version="0.3">
    <Constraint smirks="[#1:1]-[*:2]" id="c1"></Constraint>
  </Constraints>
  <Bonds version="0.4">
    <Bond smirks="[#6:1]-[#8:2]" id="b1" length="1.43 * angstrom" k="500.0 * kilocalorie / mole / angstrom ** 2"></Bond>
  </Bonds>
  <Angles version="0.3">
    <Angle smirks="[*:1]~[#6:2]~[*:3]" id="a1" angle="109.5 * degree" k="100.0 * kilocalorie / mole / radian ** 2"></Angle>
  </Angles>
  <ProperTorsions version="0.4">
    <Proper smirks="[*:1]~[#6:2]~[#8:3]~[*:4]" id="t1" periodicity1="1" k1="1.0 * kilocalorie / mole" periodicity2="2" k2="0.5 * kilocalorie / mole"></Proper>
  </ProperTorsions>
  <ImproperTorsions version="0.3">
    <Improper smirks="[*:1]~[#6X3:2](~[*:3])~[*:4]" id="i1" periodicity1="2" k1="1.1 * kilocalorie / mole"></Improper>
  </ImproperTorsions>
</SMIRNOFF>
`

func writeFitForceField(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "initial.offxml")
	require.NoError(t, os.WriteFile(path, []byte(fitOFFXML), 0o644))
	return path
}

func testCollections() (*qcarchive.Collection, *qcarchive.Collection) {
	opt := &qcarchive.Collection{
		Type: qcarchive.CollectionOptimization,
		Entries: map[string][]qcarchive.Entry{
			"https://qa.example.com": {
				{RecordID: "opt-1", CMILES: "CCO"},
				{RecordID: "opt-2", CMILES: "CCN"},
			},
		},
	}
	td := &qcarchive.Collection{
		Type: qcarchive.CollectionTorsionDrive,
		Entries: map[string][]qcarchive.Entry{
			"https://qa.example.com": {
				{RecordID: "td-1", CMILES: "CCO"},
			},
		},
	}
	return opt, td
}

func TestGenerate(t *testing.T) {
	opt, td := testCollections()
	outDir := t.TempDir()

	schema, err := Generate(context.Background(), opt, td, Options{
		Tag:            "fit-1",
		ForceFieldPath: writeFitForceField(t),
		ValenceSMIRKS: map[string][]string{
			"Bonds":  {"[#6:1]-[#8:2]"},
			"Angles": {"[*:1]~[#6:2]~[*:3]", "[*:1]~[#6X2:2]~[*:3]"},
		},
		TorsionSMIRKS: map[string][]string{
			"ProperTorsions":   {"[*:1]~[#6:2]~[#8:3]~[*:4]", "[*:1]~[#7:2]~[#7:3]~[*:4]"},
			"ImproperTorsions": {"[*:1]~[#6X3:2](~[*:3])~[*:4]"},
		},
		OutputDir: outDir,
	})
	require.NoError(t, err)
	assert.Equal(t, "fit-1", schema.ID)

	require.Len(t, schema.Stages, 1)
	stage := schema.Stages[0]
	assert.Equal(t, 50, stage.Optimizer.MaxIterations)
	assert.Equal(t, "55387", stage.Optimizer.Extras["wq_port"])
	require.Len(t, stage.Targets, 2)

	// One entry per selected pattern, except the proper torsion the
	// force field does not define.
	want := []ParameterSMIRKS{
		{Type: "AngleSMIRKS", SMIRKS: "[*:1]~[#6:2]~[*:3]", Attributes: []string{"angle", "k"}},
		{Type: "AngleSMIRKS", SMIRKS: "[*:1]~[#6X2:2]~[*:3]", Attributes: []string{"k"}},
		{Type: "BondSMIRKS", SMIRKS: "[#6:1]-[#8:2]", Attributes: []string{"k", "length"}},
		{Type: "ProperTorsionSMIRKS", SMIRKS: "[*:1]~[#6:2]~[#8:3]~[*:4]", Attributes: []string{"k1", "k2"}},
		{Type: "ImproperTorsionSMIRKS", SMIRKS: "[*:1]~[#6X3:2](~[*:3])~[*:4]", Attributes: []string{"k1"}},
	}
	assert.Empty(t, cmp.Diff(want, stage.Parameters))

	for _, rel := range []string{
		filepath.Join("schemas", "optimizations", "fit-1.json"),
		filepath.Join("fit-1", "forcefield", "force-field.offxml"),
		filepath.Join("fit-1", "targets", "torsion-profile", "training-set.json"),
		filepath.Join("fit-1", "targets", "opt-geo", "training-set.json"),
	} {
		_, err := os.Stat(filepath.Join(outDir, rel))
		assert.NoError(t, err, rel)
	}

	// The written schema document round-trips as JSON.
	raw, err := os.ReadFile(filepath.Join(outDir, "schemas", "optimizations", "fit-1.json"))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "fit-1", decoded["id"])
}

func TestGenerateDefaultsTag(t *testing.T) {
	opt, td := testCollections()
	schema, err := Generate(context.Background(), opt, td, Options{
		ForceFieldPath: writeFitForceField(t),
		OutputDir:      t.TempDir(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, schema.ID)
}

func TestLoadTrainingDataSmilesExclusion(t *testing.T) {
	opt, td := testCollections()
	smiles := filepath.Join(t.TempDir(), "exclude.smi")
	require.NoError(t, os.WriteFile(smiles, []byte("CCN\n"), 0o644))

	require.NoError(t, LoadTrainingData(context.Background(), opt, td, "", smiles, nil))
	assert.Equal(t, 1, opt.NResults())
	assert.Equal(t, 1, td.NResults(), "no torsion entry matches the excluded molecule")
}

func TestLoadTrainingDataNoFilters(t *testing.T) {
	opt, td := testCollections()
	require.NoError(t, LoadTrainingData(context.Background(), opt, td, "", "", nil))
	assert.Equal(t, 2, opt.NResults())
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings(25, 4242)
	assert.Equal(t, "ForceBalance", s.Type)
	assert.Equal(t, 25, s.MaxIterations)
	assert.Equal(t, "4242", s.Extras["wq_port"])
	assert.Equal(t, 2, s.NCriteria)
	assert.Equal(t, -1.0, s.InitialTrustRadius)
}
