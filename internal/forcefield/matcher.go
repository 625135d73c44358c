package forcefield

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"vfcurate/internal/chem"
)

// ErrBadPattern indicates a SMIRKS pattern outside the supported subset.
var ErrBadPattern = errors.New("forcefield: unsupported SMIRKS pattern")

// Matcher is the shipped Labeler. It assigns parameters by matching a
// restricted SMIRKS subset against the molecular graph:
//
//	atom terms:  [*:n]  [#6:n]  [#7X3:n]   (any, element, element+degree)
//	bond terms:  -  =  #  :  ~
//	one level of branching, as in improper patterns [*:1]~[#6X3:2](~[*:3])~[*:4]
//
// Every atom in a pattern must carry a map number. Within each handler,
// later parameters override earlier ones, following the SMIRNOFF
// hierarchy rule. Full SMARTS semantics are deliberately out of scope.
type Matcher struct {
	ff       *ForceField
	compiled map[string]*patNode
}

// NewMatcher compiles every parameter pattern of the force field.
// A pattern outside the supported subset is a construction error.
func NewMatcher(ff *ForceField) (*Matcher, error) {
	m := &Matcher{ff: ff, compiled: make(map[string]*patNode)}
	for _, typ := range []string{TypeBonds, TypeAngles, TypeProperTorsions, TypeImproperTorsions} {
		h, err := ff.Handler(typ)
		if err != nil {
			continue // absent handlers are fine; nothing to label
		}
		for _, p := range h.Parameters {
			root, nMapped, err := parsePattern(p.SMIRKS)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", p.ID, err)
			}
			if want := siteSize(typ); nMapped != want {
				return nil, fmt.Errorf("%w: parameter %q maps %d atoms, %s needs %d",
					ErrBadPattern, p.ID, nMapped, typ, want)
			}
			m.compiled[p.SMIRKS] = root
		}
	}
	return m, nil
}

// LabelMolecule implements Labeler.
func (m *Matcher) LabelMolecule(mol *chem.Molecule) (Labels, error) {
	labels := make(Labels)
	for _, typ := range []string{TypeBonds, TypeAngles, TypeProperTorsions, TypeImproperTorsions} {
		h, err := m.ff.Handler(typ)
		if err != nil {
			continue
		}
		assigned := make(map[Site]string)
		for _, p := range h.Parameters {
			root, ok := m.compiled[p.SMIRKS]
			if !ok {
				// Patterns are compiled at construction; a miss means the
				// force field was mutated after NewMatcher.
				return nil, fmt.Errorf("%w: %q not compiled", ErrBadPattern, p.SMIRKS)
			}
			for _, binding := range matchAll(mol, root) {
				site, err := canonicalSite(typ, binding)
				if err != nil {
					return nil, err
				}
				assigned[site] = p.ID
			}
		}
		labels[typ] = assigned
	}
	return labels, nil
}

// MatchesPattern reports whether a pattern matches anywhere in the
// molecule. Used by dataset SMARTS-exclusion filters; map numbers are
// still required on every atom.
func MatchesPattern(mol *chem.Molecule, pattern string) (bool, error) {
	root, _, err := parsePattern(pattern)
	if err != nil {
		return false, err
	}
	return len(matchAll(mol, root)) > 0, nil
}

func siteSize(typ string) int {
	switch typ {
	case TypeBonds:
		return 2
	case TypeAngles:
		return 3
	default:
		return 4
	}
}

// canonicalSite orients a matched binding so each physical site has one
// representation: bonds and angles low-index first, proper torsions with
// the central bond ascending, impropers with the central atom second and
// the outer atoms sorted.
func canonicalSite(typ string, binding map[int]int) (Site, error) {
	at := func(n int) int { return binding[n] }
	switch typ {
	case TypeBonds:
		i, j := at(1), at(2)
		if i > j {
			i, j = j, i
		}
		return BondSite(i, j), nil
	case TypeAngles:
		i, j, k := at(1), at(2), at(3)
		if i > k {
			i, k = k, i
		}
		return AngleSite(i, j, k), nil
	case TypeProperTorsions:
		i, j, k, l := at(1), at(2), at(3), at(4)
		if j > k {
			i, j, k, l = l, k, j, i
		}
		return TorsionSite(i, j, k, l), nil
	case TypeImproperTorsions:
		outer := []int{at(1), at(3), at(4)}
		sort.Ints(outer)
		return TorsionSite(outer[0], at(2), outer[1], outer[2]), nil
	}
	return Site{}, fmt.Errorf("%w: unknown site type %s", ErrBadPattern, typ)
}

// --- pattern AST ------------------------------------------------------

const bondAny = '~'

type patNode struct {
	element      int // 0 = wildcard
	connectivity int // 0 = unconstrained, else required degree
	mapNum       int
	edges        []patEdge
}

type patEdge struct {
	bond byte
	to   *patNode
}

type patParser struct {
	s   string
	pos int
}

// parsePattern compiles one pattern and returns its root node and the
// number of mapped atoms.
func parsePattern(s string) (*patNode, int, error) {
	p := &patParser{s: s}
	root, err := p.parseAtom()
	if err != nil {
		return nil, 0, err
	}
	if err := p.parseTail(root); err != nil {
		return nil, 0, err
	}
	if p.pos != len(p.s) {
		return nil, 0, fmt.Errorf("%w: trailing input in %q", ErrBadPattern, s)
	}
	seen := map[int]bool{}
	if err := collectMapNums(root, seen); err != nil {
		return nil, 0, fmt.Errorf("%w in %q", err, s)
	}
	for n := 1; n <= len(seen); n++ {
		if !seen[n] {
			return nil, 0, fmt.Errorf("%w: map numbers not contiguous in %q", ErrBadPattern, s)
		}
	}
	return root, len(seen), nil
}

func collectMapNums(n *patNode, seen map[int]bool) error {
	if seen[n.mapNum] {
		return fmt.Errorf("%w: duplicate map number %d", ErrBadPattern, n.mapNum)
	}
	seen[n.mapNum] = true
	for _, e := range n.edges {
		if err := collectMapNums(e.to, seen); err != nil {
			return err
		}
	}
	return nil
}

// parseTail consumes "(bond atom ...)" branches and "bond atom" chain
// continuations attached to cur.
func (p *patParser) parseTail(cur *patNode) error {
	for p.pos < len(p.s) && p.s[p.pos] != ')' {
		if p.s[p.pos] == '(' {
			p.pos++
			bond, err := p.parseBond()
			if err != nil {
				return err
			}
			child, err := p.parseAtom()
			if err != nil {
				return err
			}
			if err := p.parseTail(child); err != nil {
				return err
			}
			if p.pos >= len(p.s) || p.s[p.pos] != ')' {
				return fmt.Errorf("%w: unclosed branch in %q", ErrBadPattern, p.s)
			}
			p.pos++
			cur.edges = append(cur.edges, patEdge{bond: bond, to: child})
			continue
		}
		bond, err := p.parseBond()
		if err != nil {
			return err
		}
		next, err := p.parseAtom()
		if err != nil {
			return err
		}
		cur.edges = append(cur.edges, patEdge{bond: bond, to: next})
		cur = next
	}
	return nil
}

func (p *patParser) parseBond() (byte, error) {
	if p.pos >= len(p.s) {
		return 0, fmt.Errorf("%w: missing bond in %q", ErrBadPattern, p.s)
	}
	c := p.s[p.pos]
	switch c {
	case '-', '=', '#', ':', '~':
		p.pos++
		return c, nil
	case '[':
		// An implicit single bond is not part of the subset; require an
		// explicit bond symbol between atoms.
		return 0, fmt.Errorf("%w: missing bond symbol in %q", ErrBadPattern, p.s)
	default:
		return 0, fmt.Errorf("%w: bad bond symbol %q in %q", ErrBadPattern, string(c), p.s)
	}
}

func (p *patParser) parseAtom() (*patNode, error) {
	if p.pos >= len(p.s) || p.s[p.pos] != '[' {
		return nil, fmt.Errorf("%w: expected '[' in %q", ErrBadPattern, p.s)
	}
	p.pos++
	n := &patNode{}
	switch {
	case p.peek() == '*':
		p.pos++
	case p.peek() == '#':
		p.pos++
		z, err := p.parseInt()
		if err != nil {
			return nil, fmt.Errorf("%w: bad element in %q", ErrBadPattern, p.s)
		}
		n.element = z
	default:
		return nil, fmt.Errorf("%w: bad atom term in %q", ErrBadPattern, p.s)
	}
	if p.peek() == 'X' {
		p.pos++
		x, err := p.parseInt()
		if err != nil {
			return nil, fmt.Errorf("%w: bad connectivity in %q", ErrBadPattern, p.s)
		}
		n.connectivity = x
	}
	if p.peek() != ':' {
		return nil, fmt.Errorf("%w: atom without map number in %q", ErrBadPattern, p.s)
	}
	p.pos++
	num, err := p.parseInt()
	if err != nil || num < 1 {
		return nil, fmt.Errorf("%w: bad map number in %q", ErrBadPattern, p.s)
	}
	n.mapNum = num
	if p.peek() != ']' {
		return nil, fmt.Errorf("%w: unclosed atom term in %q", ErrBadPattern, p.s)
	}
	p.pos++
	return n, nil
}

func (p *patParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *patParser) parseInt() (int, error) {
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, fmt.Errorf("expected digits")
	}
	return strconv.Atoi(p.s[start:p.pos])
}

// --- matching ---------------------------------------------------------

// matchAll returns every binding of pattern map numbers to atom indices.
// Bindings differing only by traversal order of equivalent atoms are all
// reported; callers canonicalize.
func matchAll(mol *chem.Molecule, root *patNode) []map[int]int {
	var out []map[int]int
	for a := 0; a < mol.NumAtoms(); a++ {
		if !atomMatches(mol, root, a) {
			continue
		}
		used := map[int]bool{a: true}
		binding := map[int]int{root.mapNum: a}
		solve(mol, []task{{atom: a, edges: root.edges}}, used, binding, &out)
	}
	return out
}

type task struct {
	atom  int
	edges []patEdge
}

func solve(mol *chem.Molecule, tasks []task, used map[int]bool, binding map[int]int, out *[]map[int]int) {
	if len(tasks) == 0 {
		done := make(map[int]int, len(binding))
		for k, v := range binding {
			done[k] = v
		}
		*out = append(*out, done)
		return
	}
	t := tasks[0]
	if len(t.edges) == 0 {
		solve(mol, tasks[1:], used, binding, out)
		return
	}
	e := t.edges[0]
	rest := make([]task, 0, len(tasks)+1)
	rest = append(rest, task{atom: t.atom, edges: t.edges[1:]})
	rest = append(rest, tasks[1:]...)
	for _, nb := range mol.Neighbors(t.atom) {
		if used[nb] {
			continue
		}
		b, ok := mol.BondBetween(t.atom, nb)
		if !ok || !bondMatches(e.bond, b.Order) {
			continue
		}
		if !atomMatches(mol, e.to, nb) {
			continue
		}
		used[nb] = true
		binding[e.to.mapNum] = nb
		next := make([]task, 0, len(rest)+1)
		next = append(next, task{atom: nb, edges: e.to.edges})
		next = append(next, rest...)
		solve(mol, next, used, binding, out)
		delete(binding, e.to.mapNum)
		delete(used, nb)
	}
}

func atomMatches(mol *chem.Molecule, n *patNode, atom int) bool {
	if n.element != 0 && mol.Atoms[atom].AtomicNumber != n.element {
		return false
	}
	if n.connectivity != 0 && len(mol.Neighbors(atom)) != n.connectivity {
		return false
	}
	return true
}

func bondMatches(sym byte, order int) bool {
	switch sym {
	case bondAny:
		return true
	case '-':
		return order == chem.BondSingle
	case '=':
		return order == chem.BondDouble
	case '#':
		return order == chem.BondTriple
	case ':':
		return order == chem.BondAromatic
	}
	return false
}
