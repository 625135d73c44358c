package curate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"vfcurate/internal/forcefield"
)

// CapMethod selects which records survive when a torsion parameter has
// more supporting records than the cap allows.
type CapMethod string

const (
	// PickHeavy keeps the records with the most heavy atoms.
	PickHeavy CapMethod = "pick_heavy"
	// PickLight keeps the records with the fewest heavy atoms.
	PickLight CapMethod = "pick_light"
	// PickRandom keeps an unweighted random sample. Non-deterministic
	// across runs unless the caller supplies a seeded source.
	PickRandom CapMethod = "pick_random"
)

var (
	// ErrBadCapSize indicates a non-positive cap size: a programming
	// contract violation, not a data condition.
	ErrBadCapSize = errors.New("curate: cap size must be positive")

	// ErrBadCapMethod indicates an unknown capping method.
	ErrBadCapMethod = errors.New("curate: unknown capping method")
)

// CapOptions configures CapTorsions.
type CapOptions struct {
	// CapSize is the maximum number of records retained per torsion
	// parameter. Must be positive.
	CapSize int

	// Method picks which records survive for over-represented
	// parameters. Defaults to PickRandom, as upstream dataset tooling
	// does.
	Method CapMethod

	// RingTorsions exempts in-ring torsion rules from ring exclusion
	// during the underlying aggregation.
	RingTorsions RingTorsions

	// Rand is the randomness source for PickRandom. Nil means a
	// time-seeded source; supply a fixed-seed source for reproducible
	// sampling.
	Rand *rand.Rand

	// Logger, when set, reports the final per-parameter coverage.
	Logger *zap.Logger
}

// CapTorsions bounds the number of training records retained per proper
// torsion parameter. Parameters covered by at most CapSize records keep
// everything; over-represented parameters keep exactly CapSize records
// chosen by the configured method. The union of survivors across all
// parameters is retained in the dataset, which is rewritten in place;
// a record supporting several parameters is kept once.
//
// The per-parameter record lists that survive are returned keyed by
// parameter identifier.
func CapTorsions(
	ctx context.Context,
	ds RetainableDataset,
	labeler forcefield.Labeler,
	opts CapOptions,
) (map[string][]string, error) {
	if opts.CapSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadCapSize, opts.CapSize)
	}
	method := opts.Method
	if method == "" {
		method = PickRandom
	}
	switch method {
	case PickHeavy, PickLight, PickRandom:
	default:
		return nil, fmt.Errorf("%w: %q", ErrBadCapMethod, method)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	coverage, index, err := Aggregate(ctx, ds, labeler,
		[]string{forcefield.TypeProperTorsions}, opts.RingTorsions)
	if err != nil {
		return nil, err
	}

	recordsToKeep := make(map[string][]string, len(coverage))
	for parameterID, count := range coverage {
		entries := index[parameterID]
		if count > opts.CapSize {
			entries = sample(entries, opts.CapSize, method, rng)
		}
		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.RecordID
		}
		recordsToKeep[parameterID] = ids
	}

	log.Info("final coverage", zap.Int("parameters", len(recordsToKeep)))
	for _, parameterID := range sortedKeys(recordsToKeep) {
		log.Info("capped parameter",
			zap.String("parameter", parameterID),
			zap.Int("kept", len(recordsToKeep[parameterID])),
			zap.Int("coverage", coverage[parameterID]))
	}

	keep := make(map[string]struct{})
	for _, ids := range recordsToKeep {
		for _, id := range ids {
			keep[id] = struct{}{}
		}
	}
	total := ds.NResults()
	kept := ds.Retain(keep)
	log.Info("pruned dataset", zap.Int("total", total), zap.Int("kept", kept))

	return recordsToKeep, nil
}

// sample selects exactly n entries by policy. Callers guarantee
// len(entries) > n; the coverage guard makes exhaustion impossible.
func sample(entries []IndexEntry, n int, method CapMethod, rng *rand.Rand) []IndexEntry {
	switch method {
	case PickHeavy:
		picked := make([]IndexEntry, len(entries))
		copy(picked, entries)
		sort.SliceStable(picked, func(i, j int) bool {
			return picked[i].HeavyAtoms > picked[j].HeavyAtoms
		})
		return picked[:n]
	case PickLight:
		picked := make([]IndexEntry, len(entries))
		copy(picked, entries)
		sort.SliceStable(picked, func(i, j int) bool {
			return picked[i].HeavyAtoms < picked[j].HeavyAtoms
		})
		return picked[:n]
	default: // PickRandom, validated by the caller
		picked := make([]IndexEntry, 0, n)
		for _, i := range rng.Perm(len(entries))[:n] {
			picked = append(picked, entries[i])
		}
		return picked
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
