package builder

import (
	"time"

	"github.com/google/uuid"
)

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Stage      string `json:"stage"`
	DurationMs int64  `json:"durationMs"`
}

// Report describes one completed (or failed) build. It travels with the
// graph: logged at the end of the build, returned to callers, and persisted
// alongside the snapshot so status queries can answer "what built this".
type Report struct {
	BuildID    string    `json:"buildId"`
	RepoRoot   string    `json:"repoRoot"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMs int64     `json:"durationMs"`

	Stages []StageTiming `json:"stages"`

	Directories  int `json:"directories"`
	FilesScanned int `json:"filesScanned"`
	FilesSkipped int `json:"filesSkipped"`

	FilesParsed    int `json:"filesParsed"`
	FilesUncovered int `json:"filesUncovered"`
	ParseFailures  int `json:"parseFailures"`

	Entities        int `json:"entities"`
	Relationships   int `json:"relationships"`
	DiscoveredEdges int `json:"discoveredEdges"`
	DroppedEdges    int `json:"droppedEdges"`

	// ParserCoverage counts parsed files per registered language.
	ParserCoverage map[string]int `json:"parserCoverage,omitempty"`
}

func newReport(repoRoot string) *Report {
	return &Report{
		BuildID:        uuid.NewString(),
		RepoRoot:       repoRoot,
		StartedAt:      time.Now().UTC(),
		ParserCoverage: make(map[string]int),
	}
}

// recordStage appends the timing for a finished stage.
func (r *Report) recordStage(state State, start time.Time) {
	r.Stages = append(r.Stages, StageTiming{
		Stage:      state.String(),
		DurationMs: time.Since(start).Milliseconds(),
	})
}

// finish stamps the total wall-clock duration.
func (r *Report) finish() {
	r.DurationMs = time.Since(r.StartedAt).Milliseconds()
}
