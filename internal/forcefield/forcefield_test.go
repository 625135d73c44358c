package forcefield

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vfcurate/internal/chem"
)

const testOFFXML = `<?xml version="1.0" encoding="utf-8"?>
<SMIRNOFF version="0.3" aromaticity_model="OEAroModel_MDL">
  <Bonds version="0.4">
    <Bond smirks="[*:1]~[*:2]" id="b0" length="1.5 * angstrom" k="500.0 * kilocalorie / (mole * angstrom ** 2)"></Bond>
    <Bond smirks="[#6:1]-[#8:2]" id="b1" length="1.43 * angstrom" k="600.0 * kilocalorie / (mole * angstrom ** 2)"></Bond>
  </Bonds>
  <Angles version="0.3">
    <Angle smirks="[*:1]~[*:2]~[*:3]" id="a1" angle="109.5 * degree" k="100.0 * kilocalorie / (mole * radian ** 2)"></Angle>
  </Angles>
  <ProperTorsions version="0.4">
    <Proper smirks="[*:1]~[*:2]~[*:3]~[*:4]" id="t1" periodicity1="3" phase1="0.0 * degree" k1="1.0 * kilocalorie / mole" idivf1="1.0"></Proper>
    <Proper smirks="[*:1]~[#6:2]~[#8:3]~[*:4]" id="t2" periodicity1="3" phase1="0.0 * degree" k1="1.5 * kilocalorie / mole" periodicity2="1" phase2="0.0 * degree" k2="0.5 * kilocalorie / mole"></Proper>
  </ProperTorsions>
  <ImproperTorsions version="0.3">
    <Improper smirks="[*:1]~[#6X3:2](~[*:3])~[*:4]" id="i1" periodicity1="2" phase1="180.0 * degree" k1="1.1 * kilocalorie / mole"></Improper>
  </ImproperTorsions>
  <Constraints version="0.3">
    <Constraint smirks="[#1:1]-[*:2]" id="c1"></Constraint>
  </Constraints>
</SMIRNOFF>
`

func parseTestFF(t *testing.T) *ForceField {
	t.Helper()
	ff, err := Parse(strings.NewReader(testOFFXML))
	require.NoError(t, err)
	return ff
}

func TestParseOFFXML(t *testing.T) {
	ff := parseTestFF(t)

	bonds, err := ff.Handler(TypeBonds)
	require.NoError(t, err)
	require.Len(t, bonds.Parameters, 2)

	p, ok := bonds.ParameterByID("b1")
	require.True(t, ok)
	assert.Equal(t, "[#6:1]-[#8:2]", p.SMIRKS)

	length, err := p.FloatAttr("length")
	require.NoError(t, err)
	assert.InDelta(t, 1.43, length, 1e-9)

	// Stale identifiers report absence, never an error.
	_, ok = bonds.ParameterByID("b999")
	assert.False(t, ok)

	torsions, err := ff.Handler(TypeProperTorsions)
	require.NoError(t, err)
	t1, ok := torsions.ParameterByID("t1")
	require.True(t, ok)
	assert.Equal(t, 1, t1.KCount())
	t2, ok := torsions.ParameterByID("t2")
	require.True(t, ok)
	assert.Equal(t, 2, t2.KCount())
}

func TestHandlerLookupErrors(t *testing.T) {
	ff := parseTestFF(t)
	_, err := ff.Handler("vdW")
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestDeregisterConstraints(t *testing.T) {
	ff := parseTestFF(t)
	assert.True(t, ff.DeregisterConstraints())
	assert.False(t, ff.DeregisterConstraints())
	_, err := ff.Handler("Constraints")
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestOFFXMLRoundTrip(t *testing.T) {
	ff := parseTestFF(t)
	ff.DeregisterConstraints()

	var sb strings.Builder
	require.NoError(t, ff.Write(&sb))

	again, err := Parse(strings.NewReader(sb.String()))
	require.NoError(t, err)

	bonds, err := again.Handler(TypeBonds)
	require.NoError(t, err)
	p, ok := bonds.ParameterByID("b0")
	require.True(t, ok)
	k, err := p.FloatAttr("k")
	require.NoError(t, err)
	assert.InDelta(t, 500.0, k, 1e-9)
	assert.Nil(t, again.Constraints)
}

func TestSetQuantity(t *testing.T) {
	ff := parseTestFF(t)
	bonds, _ := ff.Handler(TypeBonds)
	p, _ := bonds.ParameterByID("b0")

	p.SetQuantity("length", 1.234567, "angstrom")
	v, err := p.FloatAttr("length")
	require.NoError(t, err)
	assert.InDelta(t, 1.234567, v, 1e-9)
}

// methanolChain builds C-C-O-C with ring perception run.
func methylEther(t *testing.T) *chem.Molecule {
	t.Helper()
	mol := chem.NewMolecule("ether")
	for _, e := range []string{"C", "C", "O", "C"} {
		mol.AddAtom(chem.Atom{AtomicNumber: chem.AtomicNumber(e), Element: e})
	}
	for _, b := range [][2]int{{0, 1}, {1, 2}, {2, 3}} {
		require.NoError(t, mol.AddBond(b[0], b[1], chem.BondSingle))
	}
	mol.PerceiveRings()
	return mol
}

func TestMatcherLabeling(t *testing.T) {
	ff := parseTestFF(t)
	matcher, err := NewMatcher(ff)
	require.NoError(t, err)

	labels, err := matcher.LabelMolecule(methylEther(t))
	require.NoError(t, err)

	bonds := labels[TypeBonds]
	assert.Equal(t, "b0", bonds[BondSite(0, 1)])
	// Later parameters override earlier ones, both bond orientations.
	assert.Equal(t, "b1", bonds[BondSite(1, 2)])
	assert.Equal(t, "b1", bonds[BondSite(2, 3)])

	angles := labels[TypeAngles]
	assert.Len(t, angles, 2)
	assert.Equal(t, "a1", angles[AngleSite(0, 1, 2)])
	assert.Equal(t, "a1", angles[AngleSite(1, 2, 3)])

	torsions := labels[TypeProperTorsions]
	require.Len(t, torsions, 1)
	// The central C-O bond promotes the torsion from t1 to t2.
	assert.Equal(t, "t2", torsions[TorsionSite(0, 1, 2, 3)])
}

func TestMatcherImproper(t *testing.T) {
	// Formaldehyde-like trefoil: sp2 carbon bonded to O, H, H.
	mol := chem.NewMolecule("formaldehyde")
	for _, e := range []string{"O", "C", "H", "H"} {
		mol.AddAtom(chem.Atom{AtomicNumber: chem.AtomicNumber(e), Element: e})
	}
	require.NoError(t, mol.AddBond(1, 0, chem.BondDouble))
	require.NoError(t, mol.AddBond(1, 2, chem.BondSingle))
	require.NoError(t, mol.AddBond(1, 3, chem.BondSingle))
	mol.PerceiveRings()

	ff := parseTestFF(t)
	matcher, err := NewMatcher(ff)
	require.NoError(t, err)

	labels, err := matcher.LabelMolecule(mol)
	require.NoError(t, err)

	impropers := labels[TypeImproperTorsions]
	require.Len(t, impropers, 1)
	// Canonical improper site: central atom second, outer atoms sorted.
	assert.Equal(t, "i1", impropers[TorsionSite(0, 1, 2, 3)])
}

func TestParsePatternErrors(t *testing.T) {
	bad := []string{
		"",
		"[*:1][*:2]",      // implicit bond
		"[*]~[*:1]",       // unmapped atom
		"[C:1]-[C:2]",     // organic-subset symbols unsupported
		"[*:1]~[*:3]",     // non-contiguous map numbers
		"[*:1](~[*:2]",    // unclosed branch
		"[*:1]~[*:1]",     // duplicate map number
	}
	for _, s := range bad {
		_, _, err := parsePattern(s)
		assert.ErrorIs(t, err, ErrBadPattern, "pattern %q", s)
	}
}

func TestMatchesPattern(t *testing.T) {
	mol := methylEther(t)

	ok, err := MatchesPattern(mol, "[#8:1]")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchesPattern(mol, "[#7:1]")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = MatchesPattern(mol, "[#6:1]-[#8:2]-[#6:3]")
	require.NoError(t, err)
	assert.True(t, ok)
}
