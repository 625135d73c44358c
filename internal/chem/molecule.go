// Package chem provides the molecular-graph structure consumed by the
// curation engine: an ordered atom list, a bond relation with ring
// membership, and SDF (V2000) I/O for moving molecules through the
// record cache.
package chem

import (
	"errors"
	"fmt"
)

var (
	// ErrAtomOutOfRange indicates a bond referenced an atom index that
	// does not exist in the molecule.
	ErrAtomOutOfRange = errors.New("chem: atom index out of range")

	// ErrDuplicateBond indicates a second bond between the same atom pair.
	ErrDuplicateBond = errors.New("chem: duplicate bond")

	// ErrSelfBond indicates a bond from an atom to itself.
	ErrSelfBond = errors.New("chem: self bond")
)

// Bond orders as stored in SDF V2000 bond blocks.
const (
	BondSingle   = 1
	BondDouble   = 2
	BondTriple   = 3
	BondAromatic = 4
)

// Atom is one entry in a molecule's ordered atom list.
type Atom struct {
	AtomicNumber int
	Element      string
	X, Y, Z      float64
}

// IsHeavy reports whether the atom is anything other than hydrogen.
func (a Atom) IsHeavy() bool { return a.AtomicNumber != 1 }

// Bond connects two atoms by index. InRing is populated by PerceiveRings;
// a zero-value Bond is not in a ring.
type Bond struct {
	A, B   int
	Order  int
	InRing bool
}

// Molecule is a molecular graph. Atom order is significant: structural
// sites and archive records refer to atoms by position in Atoms.
type Molecule struct {
	Name  string
	Atoms []Atom
	Bonds []Bond

	index map[[2]int]int // normalized pair -> Bonds offset
	adj   [][]int        // neighbor lists, parallel to Atoms
}

// NewMolecule returns an empty molecule with the given name.
func NewMolecule(name string) *Molecule {
	return &Molecule{Name: name, index: make(map[[2]int]int)}
}

// AddAtom appends an atom and returns its index.
func (m *Molecule) AddAtom(a Atom) int {
	m.Atoms = append(m.Atoms, a)
	m.adj = append(m.adj, nil)
	return len(m.Atoms) - 1
}

// AddBond connects atoms i and j with the given order.
func (m *Molecule) AddBond(i, j, order int) error {
	if i == j {
		return fmt.Errorf("%w: %d-%d", ErrSelfBond, i, j)
	}
	if i < 0 || i >= len(m.Atoms) || j < 0 || j >= len(m.Atoms) {
		return fmt.Errorf("%w: bond %d-%d in %d-atom molecule", ErrAtomOutOfRange, i, j, len(m.Atoms))
	}
	key := pairKey(i, j)
	if m.index == nil {
		m.index = make(map[[2]int]int)
	}
	if _, dup := m.index[key]; dup {
		return fmt.Errorf("%w: %d-%d", ErrDuplicateBond, i, j)
	}
	m.index[key] = len(m.Bonds)
	m.Bonds = append(m.Bonds, Bond{A: i, B: j, Order: order})
	m.adj[i] = append(m.adj[i], j)
	m.adj[j] = append(m.adj[j], i)
	return nil
}

// BondBetween looks up the bond connecting atoms i and j. The second
// return value is false when the atoms are not bonded; that is an
// expected case for non-adjacent atoms in angle and torsion patterns,
// not a fault.
func (m *Molecule) BondBetween(i, j int) (*Bond, bool) {
	off, ok := m.index[pairKey(i, j)]
	if !ok {
		return nil, false
	}
	return &m.Bonds[off], true
}

// Neighbors returns the atoms bonded to atom i, in bond-insertion order.
func (m *Molecule) Neighbors(i int) []int {
	if i < 0 || i >= len(m.adj) {
		return nil
	}
	return m.adj[i]
}

// NumAtoms returns the number of atoms.
func (m *Molecule) NumAtoms() int { return len(m.Atoms) }

// HeavyAtomCount returns the number of non-hydrogen atoms.
func (m *Molecule) HeavyAtomCount() int {
	n := 0
	for _, a := range m.Atoms {
		if a.IsHeavy() {
			n++
		}
	}
	return n
}

// PerceiveRings marks every bond that lies on a cycle. A bond is in a
// ring exactly when it is not a bridge of the bond graph, so a single
// DFS bridge-finding pass suffices.
func (m *Molecule) PerceiveRings() {
	n := len(m.Atoms)
	if n == 0 {
		return
	}
	for i := range m.Bonds {
		m.Bonds[i].InRing = true
	}

	disc := make([]int, n)
	low := make([]int, n)
	for i := range disc {
		disc[i] = -1
	}
	timer := 0

	type frame struct {
		v, parent, next int
	}
	var stack []frame

	for root := 0; root < n; root++ {
		if disc[root] != -1 {
			continue
		}
		disc[root] = timer
		low[root] = timer
		timer++
		stack = append(stack[:0], frame{v: root, parent: -1})
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			if f.next < len(m.adj[f.v]) {
				w := m.adj[f.v][f.next]
				f.next++
				if w == f.parent {
					// Skip the tree edge back to the parent once;
					// molecules have no parallel bonds.
					f.parent = -2
					continue
				}
				if disc[w] == -1 {
					disc[w] = timer
					low[w] = timer
					timer++
					stack = append(stack, frame{v: w, parent: f.v})
				} else if disc[w] < low[f.v] {
					low[f.v] = disc[w]
				}
			} else {
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					continue
				}
				p := &stack[len(stack)-1]
				if low[f.v] < low[p.v] {
					low[p.v] = low[f.v]
				}
				if low[f.v] > disc[p.v] {
					// Tree edge p.v - f.v is a bridge.
					if off, ok := m.index[pairKey(p.v, f.v)]; ok {
						m.Bonds[off].InRing = false
					}
				}
			}
		}
	}

	// Bonds incident to degree-1 atoms are trivially bridges; the DFS
	// above already classifies them, but isolated components of a single
	// bond need the same treatment, which the bridge condition covers.
}

func pairKey(i, j int) [2]int {
	if i > j {
		i, j = j, i
	}
	return [2]int{i, j}
}
