package forcefield

import "vfcurate/internal/chem"

// Labels maps a parameter type to the structural-site assignments the
// labeler produced for one molecule: each site is bound to exactly one
// parameter identifier.
type Labels map[string]map[Site]string

// Labeler assigns force-field rules to the structural sites of a
// molecule. Implementations must be safe for repeated synchronous calls;
// the curation engine invokes the labeler once per record.
type Labeler interface {
	LabelMolecule(mol *chem.Molecule) (Labels, error)
}
