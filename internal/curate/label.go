package curate

import (
	"fmt"

	"vfcurate/internal/chem"
	"vfcurate/internal/forcefield"
	"vfcurate/internal/qcarchive"
)

// Tag identifies one coverage contribution: a parameter matched by a
// record, weighted by the heavy-atom count of the record's structure.
type Tag struct {
	ParameterID string
	RecordID    string
	HeavyAtoms  int
}

// LabelRecord assigns structural sites of one (record, molecule) pair
// to parameter identifiers for the requested parameter types and
// returns the surviving contributions as a set of tags.
//
// Two filters apply to four-atom sites of scan records:
//
//  1. A site whose central atom pair does not match the center of the
//     record's first driven dihedral (as an unordered pair) is
//     discarded; the calculation did not actually scan it.
//  2. A site lying fully in a ring is discarded unless its assigned
//     parameter is in the ring-torsion exception list. Generic torsion
//     rules overlap with dedicated in-ring rules, and training a
//     generic rule on in-ring geometry inflates its force constants.
//
// The result is a set: two distinct sites in the same record that agree
// on (parameter, record, heavy-atom count) collapse into a single
// contribution. Coverage is per record, not per site.
func LabelRecord(
	rec qcarchive.Record,
	mol *chem.Molecule,
	labeler forcefield.Labeler,
	parameterTypes []string,
	ringTorsions RingTorsions,
) (map[Tag]struct{}, error) {
	labels, err := labeler.LabelMolecule(mol)
	if err != nil {
		return nil, fmt.Errorf("curate: labeling record %s: %w", rec.ID, err)
	}

	heavy := mol.HeavyAtomCount()
	tags := make(map[Tag]struct{})

	for _, typ := range parameterTypes {
		for site, parameterID := range labels[typ] {
			if rec.Kind == qcarchive.KindTorsionDrive && site.Len() == 4 {
				ci, cj, ok := rec.DrivenCenter()
				if !ok {
					// A scan record without declared dihedrals cannot
					// vouch for any torsion site.
					continue
				}
				si, sj := site.CenterPair()
				if !samePair(si, sj, ci, cj) {
					continue
				}
				if !ringTorsions.Contains(parameterID) && TorsionInRing(mol, site) {
					continue
				}
			}
			tags[Tag{ParameterID: parameterID, RecordID: rec.ID, HeavyAtoms: heavy}] = struct{}{}
		}
	}
	return tags, nil
}

func samePair(a1, a2, b1, b2 int) bool {
	return (a1 == b1 && a2 == b2) || (a1 == b2 && a2 == b1)
}
