package qcarchive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vfcurate/internal/chem"
)

const defaultWorkers = 4

// recordPayload is the archive wire format for one record.
type recordPayload struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Dihedrals [][4]int  `json:"dihedrals,omitempty"`
	Molecule  string    `json:"molecule"` // SDF V2000 block
	Hessian   []float64 `json:"hessian,omitempty"`
}

// Client fetches records and their structures from the archive API.
// Fetches fan out across a bounded worker pool; a cache, when attached,
// is consulted before the network.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *Cache
	workers int
	log     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCache attaches a payload cache.
func WithCache(cache *Cache) ClientOption {
	return func(c *Client) { c.cache = cache }
}

// WithWorkers bounds concurrent fetches.
func WithWorkers(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger attaches a logger for fetch progress.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient builds a client for the archive at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		workers: defaultWorkers,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record fetches a single record with its molecule.
func (c *Client) Record(ctx context.Context, id string) (RecordMolecule, error) {
	payload, err := c.payload(ctx, id)
	if err != nil {
		return RecordMolecule{}, err
	}
	return decodePayload(payload)
}

// Records fetches many records concurrently, preserving input order.
// Any failure aborts the whole batch: partial results are never
// returned.
func (c *Client) Records(ctx context.Context, ids []string) ([]RecordMolecule, error) {
	out := make([]RecordMolecule, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			rm, err := c.Record(ctx, id)
			if err != nil {
				return err
			}
			out[i] = rm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.log.Debug("fetched records", zap.Int("count", len(ids)))
	return out, nil
}

// payload returns the raw record payload, consulting the cache first.
func (c *Client) payload(ctx context.Context, id string) ([]byte, error) {
	if c.cache != nil {
		data, ok, err := c.cache.Get(id)
		if err != nil {
			return nil, err
		}
		if ok {
			return data, nil
		}
	}

	url := fmt.Sprintf("%s/records/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("qcarchive: building request for %s: %w", id, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qcarchive: fetching record %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qcarchive: fetching record %s: status %d", id, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("qcarchive: reading record %s: %w", id, err)
	}

	if c.cache != nil {
		if err := c.cache.Put(id, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func decodePayload(data []byte) (RecordMolecule, error) {
	var p recordPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return RecordMolecule{}, fmt.Errorf("qcarchive: decoding record payload: %w", err)
	}

	var rec Record
	switch p.Kind {
	case "torsiondrive":
		rec = NewTorsionDriveRecord(p.ID, p.Dihedrals)
	case "optimization":
		rec = NewOptimizationRecord(p.ID)
	case "singlepoint":
		rec = NewSinglepointRecord(p.ID, p.Hessian)
	default:
		return RecordMolecule{}, fmt.Errorf("qcarchive: record %s: unknown kind %q", p.ID, p.Kind)
	}

	mols, err := chem.ParseSDF(strings.NewReader(p.Molecule))
	if err != nil {
		return RecordMolecule{}, fmt.Errorf("qcarchive: record %s molecule: %w", p.ID, err)
	}
	if len(mols) != 1 {
		return RecordMolecule{}, fmt.Errorf("qcarchive: record %s: expected one molecule, got %d", p.ID, len(mols))
	}
	return RecordMolecule{Record: rec, Molecule: mols[0]}, nil
}
