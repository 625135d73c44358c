// Package qcarchive loads archived quantum-chemistry results: result
// collections parsed from disk, and a record client that fetches record
// payloads and molecular structures from the archive HTTP API through a
// local SQLite cache.
package qcarchive

import "vfcurate/internal/chem"

// RecordKind tags the flavor of an archived calculation.
type RecordKind int

const (
	// KindOptimization is a geometry-optimization end point.
	KindOptimization RecordKind = iota
	// KindTorsionDrive is a scan over one or more driven dihedrals.
	KindTorsionDrive
	// KindSinglepoint is a single-geometry calculation, typically a
	// Hessian evaluation.
	KindSinglepoint
)

func (k RecordKind) String() string {
	switch k {
	case KindOptimization:
		return "optimization"
	case KindTorsionDrive:
		return "torsiondrive"
	case KindSinglepoint:
		return "singlepoint"
	}
	return "unknown"
}

// Record is one archived calculation result. It is a tagged variant:
// only torsion-drive records carry driven dihedrals, and only
// singlepoint records carry a Hessian.
type Record struct {
	ID   string
	Kind RecordKind

	// Dihedrals lists the driven four-atom index groups of a
	// torsion-drive record, in declaration order.
	Dihedrals [][4]int

	// Hessian is the row-major 3N x 3N second-derivative matrix of a
	// singlepoint hessian record, in Hartree/Bohr^2.
	Hessian []float64
}

// NewOptimizationRecord builds a point record with no driven torsions.
func NewOptimizationRecord(id string) Record {
	return Record{ID: id, Kind: KindOptimization}
}

// NewTorsionDriveRecord builds a scan record with its driven dihedrals.
func NewTorsionDriveRecord(id string, dihedrals [][4]int) Record {
	return Record{ID: id, Kind: KindTorsionDrive, Dihedrals: dihedrals}
}

// NewSinglepointRecord builds a hessian record.
func NewSinglepointRecord(id string, hessian []float64) Record {
	return Record{ID: id, Kind: KindSinglepoint, Hessian: hessian}
}

// DrivenCenter returns the central atom pair of the first declared
// dihedral. ok is false for point records and for scan records that
// declare no dihedrals.
func (r Record) DrivenCenter() (int, int, bool) {
	if r.Kind != KindTorsionDrive || len(r.Dihedrals) == 0 {
		return 0, 0, false
	}
	d := r.Dihedrals[0]
	return d[1], d[2], true
}

// RecordMolecule pairs a record with the structure it was computed on.
type RecordMolecule struct {
	Record   Record
	Molecule *chem.Molecule
}
