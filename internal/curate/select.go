package curate

import (
	"context"
	"errors"
	"sort"

	"vfcurate/internal/forcefield"
)

// SelectParameters aggregates coverage over the dataset and returns,
// per parameter type, the structural patterns of every identifier whose
// coverage meets minCoverage.
//
// Two kinds of attrition are silent by design: identifiers below the
// threshold (rare parameters are not worth a fitting target) and
// identifiers the schema no longer defines (stale references left by
// schema drift). Identifiers are resolved in sorted order so the output
// is reproducible across runs.
func SelectParameters(
	ctx context.Context,
	ds Dataset,
	parameterTypes []string,
	ff *forcefield.ForceField,
	labeler forcefield.Labeler,
	ringTorsions RingTorsions,
	minCoverage int,
) (map[string][]string, error) {
	coverage, _, err := Aggregate(ctx, ds, labeler, parameterTypes, ringTorsions)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(coverage))
	for id := range coverage {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	selected := make(map[string][]string, len(parameterTypes))
	for _, typ := range parameterTypes {
		patterns := []string{}
		handler, err := ff.Handler(typ)
		if err != nil {
			// A schema without this section defines no rules, so
			// nothing can be selected from it.
			if errors.Is(err, forcefield.ErrNoHandler) {
				selected[typ] = patterns
				continue
			}
			return nil, err
		}
		for _, id := range ids {
			if coverage[id] < minCoverage {
				continue
			}
			p, ok := handler.ParameterByID(id)
			if !ok {
				continue
			}
			patterns = append(patterns, p.SMIRKS)
		}
		selected[typ] = patterns
	}
	return selected, nil
}
