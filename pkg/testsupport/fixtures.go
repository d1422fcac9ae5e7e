package testsupport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-repository-pager/query"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t testing.TB, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadRecords loads a JSON array of objects as query records. JSON numbers that are
// integral become int64 so fixtures compare like executor rows.
func LoadRecords(t testing.TB, path string) []query.Record {
	t.Helper()

	records, err := DecodeRecords(LoadFixture(t, path))
	if err != nil {
		t.Fatalf("failed to decode records from %s: %v", path, err)
	}
	return records
}

// DecodeRecords parses a JSON array of objects into records.
func DecodeRecords(data []byte) ([]query.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	records := make([]query.Record, len(raw))
	for i, row := range raw {
		rec := make(query.Record, len(row))
		for k, v := range row {
			rec[k] = jsonScalar(v)
		}
		records[i] = rec
	}
	return records, nil
}

func jsonScalar(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// TempFile creates a temporary file with the given name and content, removed when
// the test ends.
func TempFile(t testing.TB, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("failed to write temp file %s: %v", path, err)
	}
	return path
}

var (
	initiativeStatuses = []string{"active", "draft", "done", "archived"}
	initiativeAreas    = []string{"health", "education", "climate"}
)

// InitiativeEpoch is the created_at of the first generated initiative.
var InitiativeEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Initiatives generates n deterministic initiative rows for tenant with ids 1..n.
// Names repeat every 10 rows so sorting by name exercises tie-breaking on id.
func Initiatives(tenant string, n int) []query.Record {
	rows := make([]query.Record, n)
	for i := 0; i < n; i++ {
		id := int64(i + 1)
		rows[i] = query.Record{
			"id":         id,
			"tenant_id":  tenant,
			"name":       fmt.Sprintf("Initiative %02d", i%10),
			"status":     initiativeStatuses[i%len(initiativeStatuses)],
			"area":       initiativeAreas[i%len(initiativeAreas)],
			"budget":     float64(1000 + (i*37)%500),
			"created_at": InitiativeEpoch.Add(time.Duration(i) * time.Hour),
		}
	}
	return rows
}
