package curate

import (
	"context"
	"sort"

	"vfcurate/internal/forcefield"
	"vfcurate/internal/qcarchive"
)

// Dataset yields the (record, molecule) pairs of one result collection.
// The sequence is finite; a single consumption per aggregation pass is
// sufficient.
type Dataset interface {
	NResults() int
	ToRecords(ctx context.Context) ([]qcarchive.RecordMolecule, error)
}

// RetainableDataset additionally supports in-place pruning of its
// record list, used by torsion capping.
type RetainableDataset interface {
	Dataset
	Retain(keep map[string]struct{}) int
}

// Coverage counts distinct (record, heavy-atom-count) contributions per
// parameter identifier.
type Coverage map[string]int

// IndexEntry is one contribution to a parameter's coverage.
type IndexEntry struct {
	HeavyAtoms int
	RecordID   string
}

// Index lists every contribution per parameter identifier, in dataset
// iteration order. Coverage[p] always equals len(Index[p]).
type Index map[string][]IndexEntry

// Aggregate runs LabelRecord over every (record, molecule) pair of the
// dataset and accumulates coverage counts and the per-parameter record
// index. Each call recomputes from the raw dataset; nothing is cached
// across calls.
func Aggregate(
	ctx context.Context,
	ds Dataset,
	labeler forcefield.Labeler,
	parameterTypes []string,
	ringTorsions RingTorsions,
) (Coverage, Index, error) {
	records, err := ds.ToRecords(ctx)
	if err != nil {
		return nil, nil, err
	}

	coverage := make(Coverage)
	index := make(Index)
	for _, rm := range records {
		tags, err := LabelRecord(rm.Record, rm.Molecule, labeler, parameterTypes, ringTorsions)
		if err != nil {
			return nil, nil, err
		}
		for _, tag := range sortedTags(tags) {
			coverage[tag.ParameterID]++
			index[tag.ParameterID] = append(index[tag.ParameterID], IndexEntry{
				HeavyAtoms: tag.HeavyAtoms,
				RecordID:   tag.RecordID,
			})
		}
	}
	return coverage, index, nil
}

// sortedTags flattens a tag set in a stable order so index insertion
// within one record does not depend on map iteration.
func sortedTags(tags map[Tag]struct{}) []Tag {
	out := make([]Tag, 0, len(tags))
	for tag := range tags {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ParameterID != out[j].ParameterID {
			return out[i].ParameterID < out[j].ParameterID
		}
		return out[i].HeavyAtoms < out[j].HeavyAtoms
	})
	return out
}
