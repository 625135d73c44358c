// Package curate is the parameter-coverage and training-set-curation
// engine: it labels archived calculation records against a force-field
// schema, aggregates per-parameter coverage, selects parameters with
// enough supporting evidence to be worth fitting, and caps the number
// of training records retained per torsion parameter.
package curate

import (
	"vfcurate/internal/chem"
	"vfcurate/internal/forcefield"
)

// IsRingBond reports whether the bond between atoms i and j lies in a
// ring. Atom pairs that are not bonded return false rather than an
// error: structural absence is expected for the outer atom pairs of
// angle and torsion patterns.
//
// Improper torsions therefore always report false here, but an improper
// with three ring bonds should be rare anyway.
func IsRingBond(mol *chem.Molecule, i, j int) bool {
	b, ok := mol.BondBetween(i, j)
	if !ok {
		return false
	}
	return b.InRing
}

// TorsionInRing reports whether a four-atom torsion I-J-K-L lies fully
// in a ring, i.e. the bonds I-J, J-K, and K-L are all ring bonds. Only
// torsion sites are ever tested; angles and bonds are never excluded on
// ring membership.
func TorsionInRing(mol *chem.Molecule, site forcefield.Site) bool {
	i, j, k, l := site.At(0), site.At(1), site.At(2), site.At(3)
	return IsRingBond(mol, i, j) &&
		IsRingBond(mol, j, k) &&
		IsRingBond(mol, k, l)
}
