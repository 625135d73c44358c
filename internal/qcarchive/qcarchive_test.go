package qcarchive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// database/sql keeps a connection opener goroutine alive for the
		// life of the process.
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

const propaneSDF = `propane
  test

  3  2  0  0  0  0  0  0  0  0999 V2000
    0.0000    0.0000    0.0000 C   0  0  0  0  0  0  0  0  0  0  0  0
    1.5200    0.0000    0.0000 C   0  0  0  0  0  0  0  0  0  0  0  0
    2.2000    1.3500    0.0000 C   0  0  0  0  0  0  0  0  0  0  0  0
  1  2  1  0
  2  3  1  0
M  END
$$$$
`

func testPayload(id, kind string) []byte {
	p := recordPayload{
		ID:       id,
		Kind:     kind,
		Molecule: propaneSDF,
	}
	if kind == "torsiondrive" {
		p.Dihedrals = [][4]int{{0, 1, 2, 3}}
	}
	data, _ := json.Marshal(p)
	return data
}

func TestParseCollection(t *testing.T) {
	data := []byte(`{
		"type": "TorsionDriveResultCollection",
		"entries": {
			"https://archive.example.org": [
				{"record_id": "td-1", "cmiles": "CCO"},
				{"record_id": "td-2", "cmiles": "CCN"}
			]
		}
	}`)
	c, err := ParseCollection(data)
	require.NoError(t, err)
	assert.Equal(t, CollectionTorsionDrive, c.Type)
	assert.Equal(t, 2, c.NResults())
	assert.Equal(t, []string{"td-1", "td-2"}, c.RecordIDs())
}

func TestCollectionRetain(t *testing.T) {
	c := &Collection{
		Type: CollectionTorsionDrive,
		Entries: map[string][]Entry{
			"addr": {
				{RecordID: "td-1"},
				{RecordID: "td-2"},
				{RecordID: "td-3"},
			},
		},
	}
	n := c.Retain(map[string]struct{}{"td-1": {}, "td-3": {}})
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, c.NResults())
	assert.Equal(t, []string{"td-1", "td-3"}, c.RecordIDs())
}

func TestCollectionRoundTripFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "td.json")
	c := &Collection{
		Type: CollectionOptimization,
		Entries: map[string][]Entry{
			"addr": {{RecordID: "opt-1", CMILES: "CC"}},
		},
	}
	require.NoError(t, c.WriteFile(path))

	again, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, c.Type, again.Type)
	assert.Equal(t, c.RecordIDs(), again.RecordIDs())
}

func TestToRecordsWithoutClient(t *testing.T) {
	c := &Collection{Type: CollectionBasic, Entries: map[string][]Entry{}}
	_, err := c.ToRecords(context.Background())
	assert.ErrorIs(t, err, ErrNoClient)
}

func TestCache(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.sqlite"))
	require.NoError(t, err)
	defer cache.Close()

	_, ok, err := cache.Get("td-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put("td-1", []byte("payload")))
	data, ok, err := cache.Get("td-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("payload"), data)

	// Put replaces.
	require.NoError(t, cache.Put("td-1", []byte("fresh")))
	data, _, err = cache.Get("td-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), data)

	n, err := cache.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestClientFetchAndCache(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		id := filepath.Base(r.URL.Path)
		if id == "missing" {
			http.NotFound(w, r)
			return
		}
		w.Write(testPayload(id, "torsiondrive"))
	}))
	defer srv.Close()

	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache.sqlite"))
	require.NoError(t, err)
	defer cache.Close()

	client := NewClient(srv.URL, WithCache(cache), WithWorkers(2))

	rm, err := client.Record(context.Background(), "td-1")
	require.NoError(t, err)
	assert.Equal(t, "td-1", rm.Record.ID)
	assert.Equal(t, KindTorsionDrive, rm.Record.Kind)
	assert.Equal(t, 3, rm.Molecule.NumAtoms())

	i, j, ok := rm.Record.DrivenCenter()
	require.True(t, ok)
	assert.Equal(t, [2]int{1, 2}, [2]int{i, j})

	// Second fetch is served from the cache.
	before := hits.Load()
	_, err = client.Record(context.Background(), "td-1")
	require.NoError(t, err)
	assert.Equal(t, before, hits.Load())

	_, err = client.Record(context.Background(), "missing")
	assert.Error(t, err)
}

func TestClientRecordsOrderAndBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(testPayload(filepath.Base(r.URL.Path), "optimization"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithWorkers(3))

	ids := []string{"opt-3", "opt-1", "opt-2"}
	records, err := client.Records(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, id := range ids {
		assert.Equal(t, id, records[i].Record.ID)
		assert.Equal(t, KindOptimization, records[i].Record.Kind)
	}
}

func TestCollectionToRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(testPayload(filepath.Base(r.URL.Path), "torsiondrive"))
	}))
	defer srv.Close()

	c := &Collection{
		Type: CollectionTorsionDrive,
		Entries: map[string][]Entry{
			"b-addr": {{RecordID: "td-2"}},
			"a-addr": {{RecordID: "td-1"}},
		},
	}
	c.WithClient(NewClient(srv.URL))

	records, err := c.ToRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Addresses iterate in sorted order.
	assert.Equal(t, "td-1", records[0].Record.ID)
	assert.Equal(t, "td-2", records[1].Record.ID)
}

func TestDecodePayloadUnknownKind(t *testing.T) {
	data, _ := json.Marshal(recordPayload{ID: "x", Kind: "mystery", Molecule: propaneSDF})
	_, err := decodePayload(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestDrivenCenter(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		ok   bool
	}{
		{"torsiondrive", NewTorsionDriveRecord("td", [][4]int{{4, 2, 3, 7}}), true},
		{"optimization", NewOptimizationRecord("opt"), false},
		{"empty scan", NewTorsionDriveRecord("td", nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, j, ok := tt.rec.DrivenCenter()
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, fmt.Sprintf("%d-%d", 2, 3), fmt.Sprintf("%d-%d", i, j))
			}
		})
	}
}
