package chem

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrBadSDF indicates a malformed V2000 SDF block.
var ErrBadSDF = errors.New("chem: malformed SDF")

// ParseSDF reads V2000 molfiles from r, one molecule per "$$$$"-separated
// block. Ring membership is perceived on every parsed molecule.
func ParseSDF(r io.Reader) ([]*Molecule, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var mols []*Molecule
	for {
		mol, err := parseMolBlock(sc)
		if err != nil {
			return nil, err
		}
		if mol == nil {
			break
		}
		mol.PerceiveRings()
		mols = append(mols, mol)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("chem: reading SDF: %w", err)
	}
	return mols, nil
}

// ParseSDFFile reads all molecules from an SDF file on disk.
func ParseSDFFile(path string) ([]*Molecule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chem: open SDF: %w", err)
	}
	defer f.Close()
	return ParseSDF(f)
}

// parseMolBlock consumes one molfile plus its trailing data items and
// "$$$$" delimiter. Returns (nil, nil) at clean EOF.
func parseMolBlock(sc *bufio.Scanner) (*Molecule, error) {
	// Header: title, program line, comment. The title line may be
	// blank, so exactly three lines are read; a run of blank lines
	// ending at EOF is trailing padding, not a truncated record.
	var header [3]string
	for i := range header {
		if !sc.Scan() {
			if i == 0 || allBlank(header[:i]) {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: truncated header", ErrBadSDF)
		}
		header[i] = sc.Text()
	}
	name := strings.TrimSpace(header[0])

	if !sc.Scan() {
		if allBlank(header[:]) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: missing counts line", ErrBadSDF)
	}
	counts := sc.Text()
	if allBlank(header[:]) && strings.TrimSpace(counts) == "" {
		for sc.Scan() {
			if strings.TrimSpace(sc.Text()) != "" {
				return nil, fmt.Errorf("%w: content after blank padding", ErrBadSDF)
			}
		}
		return nil, nil
	}
	if len(counts) < 6 {
		return nil, fmt.Errorf("%w: short counts line %q", ErrBadSDF, counts)
	}
	nAtoms, err := strconv.Atoi(strings.TrimSpace(counts[0:3]))
	if err != nil {
		return nil, fmt.Errorf("%w: atom count in %q", ErrBadSDF, counts)
	}
	nBonds, err := strconv.Atoi(strings.TrimSpace(counts[3:6]))
	if err != nil {
		return nil, fmt.Errorf("%w: bond count in %q", ErrBadSDF, counts)
	}

	mol := NewMolecule(name)
	for i := 0; i < nAtoms; i++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("%w: truncated atom block", ErrBadSDF)
		}
		line := sc.Text()
		if len(line) < 34 {
			return nil, fmt.Errorf("%w: short atom line %q", ErrBadSDF, line)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(line[0:10]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: atom %d x coordinate", ErrBadSDF, i)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(line[10:20]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: atom %d y coordinate", ErrBadSDF, i)
		}
		z, err := strconv.ParseFloat(strings.TrimSpace(line[20:30]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: atom %d z coordinate", ErrBadSDF, i)
		}
		elem := strings.TrimSpace(line[31:34])
		mol.AddAtom(Atom{
			AtomicNumber: AtomicNumber(elem),
			Element:      elem,
			X:            x, Y: y, Z: z,
		})
	}
	for i := 0; i < nBonds; i++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("%w: truncated bond block", ErrBadSDF)
		}
		line := sc.Text()
		if len(line) < 9 {
			return nil, fmt.Errorf("%w: short bond line %q", ErrBadSDF, line)
		}
		a, err := strconv.Atoi(strings.TrimSpace(line[0:3]))
		if err != nil {
			return nil, fmt.Errorf("%w: bond %d first atom", ErrBadSDF, i)
		}
		b, err := strconv.Atoi(strings.TrimSpace(line[3:6]))
		if err != nil {
			return nil, fmt.Errorf("%w: bond %d second atom", ErrBadSDF, i)
		}
		order, err := strconv.Atoi(strings.TrimSpace(line[6:9]))
		if err != nil {
			return nil, fmt.Errorf("%w: bond %d order", ErrBadSDF, i)
		}
		if err := mol.AddBond(a-1, b-1, order); err != nil {
			return nil, fmt.Errorf("chem: SDF bond %d: %w", i, err)
		}
	}

	// Properties block, data items, and the record delimiter.
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "$$$$") {
			return mol, nil
		}
	}
	// A single molfile without the delimiter is still a valid record.
	return mol, nil
}

func allBlank(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

// WriteSDF serializes a molecule as a V2000 molfile with the "$$$$"
// record delimiter, suitable for concatenation.
func WriteSDF(w io.Writer, mol *Molecule) error {
	var b strings.Builder
	b.WriteString(mol.Name)
	b.WriteString("\n  vfcurate\n\n")
	fmt.Fprintf(&b, "%3d%3d  0  0  0  0  0  0  0  0999 V2000\n",
		len(mol.Atoms), len(mol.Bonds))
	for _, a := range mol.Atoms {
		elem := a.Element
		if elem == "" {
			elem = Symbol(a.AtomicNumber)
		}
		fmt.Fprintf(&b, "%10.4f%10.4f%10.4f %-3s 0  0  0  0  0  0  0  0  0  0  0  0\n",
			a.X, a.Y, a.Z, elem)
	}
	for _, bd := range mol.Bonds {
		fmt.Fprintf(&b, "%3d%3d%3d  0\n", bd.A+1, bd.B+1, bd.Order)
	}
	b.WriteString("M  END\n$$$$\n")
	_, err := io.WriteString(w, b.String())
	if err != nil {
		return fmt.Errorf("chem: writing SDF: %w", err)
	}
	return nil
}
