// Package forcefield holds the SMIRNOFF-style parameter schema: OFFXML
// parsing and serialization, parameter lookup by identifier, and the
// structural-site labeler that assigns force-field rules to atoms of a
// molecule.
package forcefield

import (
	"fmt"
	"strings"
)

// Parameter type names, matching SMIRNOFF handler tags.
const (
	TypeBonds            = "Bonds"
	TypeAngles           = "Angles"
	TypeProperTorsions   = "ProperTorsions"
	TypeImproperTorsions = "ImproperTorsions"
)

// Site is an ordered tuple of atom indices within one molecule: two for
// a bond, three for an angle, four for a torsion. Sites are comparable
// and usable as map keys.
type Site struct {
	atoms [4]int
	n     int
}

// BondSite builds a two-atom site.
func BondSite(i, j int) Site {
	return Site{atoms: [4]int{i, j}, n: 2}
}

// AngleSite builds a three-atom site centered on j.
func AngleSite(i, j, k int) Site {
	return Site{atoms: [4]int{i, j, k}, n: 3}
}

// TorsionSite builds a four-atom site. For proper torsions the central
// bond is j-k; for impropers j is the central atom.
func TorsionSite(i, j, k, l int) Site {
	return Site{atoms: [4]int{i, j, k, l}, n: 4}
}

// Len returns the number of atoms in the site.
func (s Site) Len() int { return s.n }

// At returns the atom index at position i.
func (s Site) At(i int) int { return s.atoms[i] }

// Atoms returns the site's atom indices as a slice.
func (s Site) Atoms() []int {
	out := make([]int, s.n)
	copy(out, s.atoms[:s.n])
	return out
}

// CenterPair returns the two central atoms of a four-atom site
// (positions 1 and 2). It is only meaningful for torsions.
func (s Site) CenterPair() (int, int) {
	return s.atoms[1], s.atoms[2]
}

func (s Site) String() string {
	parts := make([]string, s.n)
	for i := 0; i < s.n; i++ {
		parts[i] = fmt.Sprintf("%d", s.atoms[i])
	}
	return "(" + strings.Join(parts, ",") + ")"
}
