package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/elasticity-cli/internal/model"
	"github.com/sells-group/elasticity-cli/internal/posterior"
)

// Manifest describes one run and the artifacts it produced.
type Manifest struct {
	RunID      string              `json:"run_id"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	PriorSet   string              `json:"prior_set,omitempty"`
	Sources    []ManifestSource    `json:"sources"`
	Rows       map[string]int      `json:"rows_per_retailer"`
	Settings   *posterior.Settings `json:"settings,omitempty"`
	Converged  *bool               `json:"converged,omitempty"`
	Artifacts  []string            `json:"artifacts"`
}

// ManifestSource records where a retailer extract came from.
type ManifestSource struct {
	Retailer string `json:"retailer"`
	Location string `json:"location"`
	Staged   string `json:"staged"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RowsPerRetailer counts panel records by retailer.
func RowsPerRetailer(records []model.WeeklyPanelRecord) map[string]int {
	out := make(map[string]int)
	for _, r := range records {
		out[r.Retailer]++
	}
	return out
}

// WriteManifest writes manifest.json.
func WriteManifest(path string, m Manifest) error {
	return writeJSON(path, m)
}

// ReadManifest reads manifest.json.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	err := readJSON(path, &m)
	return m, err
}
