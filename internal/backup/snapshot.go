package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/agildata/fieldbase/internal/types"
)

// SnapshotVersion tags the snapshot schema this build writes and the
// only version it accepts on restore.
const SnapshotVersion = "1.0"

// ErrInvalidSnapshot is returned when a snapshot fails validation.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is the full-state backup document: a schema version tag, a
// creation timestamp, the complete per-table data, and metadata.
type Snapshot struct {
	Version   string         `json:"version"`
	Timestamp time.Time      `json:"timestamp"`
	Data      *types.Dataset `json:"data"`
	Metadata  Metadata       `json:"metadata"`
}

// Metadata describes a snapshot without requiring its data section.
type Metadata struct {
	Counts     map[string]int `json:"counts"`
	AppVersion string         `json:"app_version"`
}

// DecodeSnapshot parses and validates a serialized snapshot. The
// document must carry the expected version tag and a data section
// containing every entity table as a structured collection; anything
// else is rejected with ErrInvalidSnapshot before any row is touched.
func DecodeSnapshot(raw []byte) (*Snapshot, error) {
	var probe struct {
		Version string                     `json:"version"`
		Data    map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("%w: malformed document: %v", ErrInvalidSnapshot, err)
	}

	if probe.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %q (want %q)",
			ErrInvalidSnapshot, probe.Version, SnapshotVersion)
	}
	if probe.Data == nil {
		return nil, fmt.Errorf("%w: missing data section", ErrInvalidSnapshot)
	}
	for _, kind := range types.Kinds() {
		table, ok := probe.Data[string(kind)]
		if !ok {
			return nil, fmt.Errorf("%w: data section missing table %q", ErrInvalidSnapshot, kind)
		}
		if !isJSONArray(table) {
			return nil, fmt.Errorf("%w: table %q is not a collection", ErrInvalidSnapshot, kind)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: decode data: %v", ErrInvalidSnapshot, err)
	}
	return &snap, nil
}

func isJSONArray(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}
