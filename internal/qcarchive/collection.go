package qcarchive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Collection type names, matching the serialized "type" field.
const (
	CollectionTorsionDrive = "TorsionDriveResultCollection"
	CollectionOptimization = "OptimizationResultCollection"
	CollectionBasic        = "BasicResultCollection"
)

// ErrNoClient indicates ToRecords was called on a collection that was
// never bound to an archive client.
var ErrNoClient = errors.New("qcarchive: collection has no client")

// Entry references one archived record within a collection.
type Entry struct {
	RecordID string `json:"record_id"`
	CMILES   string `json:"cmiles,omitempty"`
	InchiKey string `json:"inchi_key,omitempty"`
}

// Collection is a result collection: record references grouped by the
// archive address they were submitted to. The struct serializes to the
// same JSON layout it is parsed from, so pruned collections can be
// written back out.
type Collection struct {
	Type    string             `json:"type"`
	Entries map[string][]Entry `json:"entries"`

	client *Client
}

// ParseCollection decodes a serialized collection.
func ParseCollection(data []byte) (*Collection, error) {
	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("qcarchive: parsing collection: %w", err)
	}
	if c.Entries == nil {
		c.Entries = make(map[string][]Entry)
	}
	return &c, nil
}

// ParseFile reads a collection from disk.
func ParseFile(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("qcarchive: reading collection %s: %w", path, err)
	}
	c, err := ParseCollection(data)
	if err != nil {
		return nil, fmt.Errorf("qcarchive: %s: %w", path, err)
	}
	return c, nil
}

// WithClient binds the archive client used by ToRecords and returns the
// collection for chaining.
func (c *Collection) WithClient(client *Client) *Collection {
	c.client = client
	return c
}

// NResults counts the record references across all addresses.
func (c *Collection) NResults() int {
	n := 0
	for _, entries := range c.Entries {
		n += len(entries)
	}
	return n
}

// RecordIDs returns every referenced record id, addresses in sorted
// order and entries in declaration order within each address.
func (c *Collection) RecordIDs() []string {
	addrs := make([]string, 0, len(c.Entries))
	for addr := range c.Entries {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	var ids []string
	for _, addr := range addrs {
		for _, e := range c.Entries[addr] {
			ids = append(ids, e.RecordID)
		}
	}
	return ids
}

// ToRecords resolves every entry to a (record, molecule) pair through
// the bound client. The sequence is finite and ordered as RecordIDs;
// cancellation of ctx fails the whole pass.
func (c *Collection) ToRecords(ctx context.Context) ([]RecordMolecule, error) {
	if c.client == nil {
		return nil, ErrNoClient
	}
	return c.client.Records(ctx, c.RecordIDs())
}

// Retain rewrites the collection in place, keeping only entries whose
// record id is in keep. Returns the number of retained entries.
func (c *Collection) Retain(keep map[string]struct{}) int {
	n := 0
	for addr, entries := range c.Entries {
		kept := entries[:0]
		for _, e := range entries {
			if _, ok := keep[e.RecordID]; ok {
				kept = append(kept, e)
			}
		}
		c.Entries[addr] = kept
		n += len(kept)
	}
	return n
}

// WriteFile serializes the collection back to disk.
func (c *Collection) WriteFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("qcarchive: encoding collection: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("qcarchive: writing collection %s: %w", path, err)
	}
	return nil
}
