package curate

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// RingTorsions is the set of parameter identifiers exempt from ring
// torsion exclusion: rules whose pattern is explicitly meant for
// in-ring torsions. Loaded once per run, read-only afterwards.
type RingTorsions map[string]struct{}

// Contains reports whether the identifier is exempt.
func (r RingTorsions) Contains(id string) bool {
	_, ok := r[id]
	return ok
}

// LoadRingTorsions reads an exception list: one parameter identifier
// per line, blank lines and "#" comments ignored. An empty path yields
// an empty set; an unreadable file is fatal, since curation cannot
// proceed with an ambiguous ring-exclusion policy.
func LoadRingTorsions(path string) (RingTorsions, error) {
	out := make(RingTorsions)
	if path == "" {
		return out, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("curate: ring-torsion exceptions: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.ContainsAny(line, " \t") {
			return nil, fmt.Errorf("curate: ring-torsion exceptions: malformed line %q in %s", line, path)
		}
		out[line] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("curate: ring-torsion exceptions: %w", err)
	}
	return out, nil
}
