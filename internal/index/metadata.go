// Package index tracks what was indexed when: build metadata under the
// repo-local state directory, freshness against the current configuration,
// and the advisory lock that serializes concurrent index runs.
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// MetadataVersion is the current version of the metadata format.
	MetadataVersion = 1

	// metadataFile is the filename for index metadata.
	metadataFile = "index-meta.json"

	// MaxAge is how old an index may grow before it is reported stale.
	MaxAge = 24 * time.Hour
)

// Meta records one completed index run.
type Meta struct {
	Version       int       `json:"version"`
	BuildID       string    `json:"buildId"`
	CreatedAt     time.Time `json:"createdAt"`
	ConfigHash    string    `json:"configHash"`
	Files         int       `json:"files"`
	Entities      int       `json:"entities"`
	Relationships int       `json:"relationships"`
	DurationMs    int64     `json:"durationMs"`
}

// Freshness describes whether the stored index still matches the repository
// configuration and how old it is.
type Freshness struct {
	Fresh  bool
	Reason string
	Age    time.Duration
}

// LoadMeta loads index metadata from the state directory. Returns nil
// without error if no metadata file exists or its format version is
// unknown; both mean "index from scratch".
func LoadMeta(stateDir string) (*Meta, error) {
	path := filepath.Join(stateDir, metadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading index metadata: %w", err)
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing index metadata: %w", err)
	}

	if meta.Version != MetadataVersion {
		return nil, nil
	}

	return &meta, nil
}

// Save writes index metadata to the state directory.
func (m *Meta) Save(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	m.Version = MetadataVersion

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling index metadata: %w", err)
	}

	path := filepath.Join(stateDir, metadataFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing index metadata: %w", err)
	}

	return nil
}

// CheckFreshness reports whether this metadata still describes a usable
// index for the given configuration hash. A changed configuration or an
// index older than MaxAge means stale.
func (m *Meta) CheckFreshness(configHash string) Freshness {
	if m == nil {
		return Freshness{
			Fresh:  false,
			Reason: "no index metadata found",
		}
	}

	age := time.Since(m.CreatedAt)

	if m.ConfigHash != configHash {
		return Freshness{
			Fresh:  false,
			Reason: "configuration changed since last index",
			Age:    age,
		}
	}

	if age > MaxAge {
		return Freshness{
			Fresh:  false,
			Reason: fmt.Sprintf("index is %s old", humanDuration(age)),
			Age:    age,
		}
	}

	return Freshness{Fresh: true, Age: age}
}

// humanDuration formats a duration in human-readable form.
func humanDuration(d time.Duration) string {
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
