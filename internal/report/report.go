// Package report writes and reads the run artifacts: the prepared panel,
// the posterior summary, the draw trace, the convergence report, the model
// summary text and the run manifest.
package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
)

// Artifact file names under the output directory.
const (
	PreparedDataFile = "prepared_data.csv"
	SummaryFile      = "results_summary.csv"
	TraceFile        = "trace.csv"
	ConvergenceFile  = "convergence.json"
	ModelSummaryFile = "model_summary.txt"
	ManifestFile     = "manifest.json"
)

// Float renders with the shortest representation that round-trips.
type Float float64

// MarshalText implements encoding.TextMarshaler.
func (f Float) MarshalText() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(f), 'f', -1, 64), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Float) UnmarshalText(b []byte) error {
	v, err := strconv.ParseFloat(string(bytes.TrimSpace(b)), 64)
	if err != nil {
		return eris.Wrapf(err, "report: parse float %q", b)
	}
	*f = Float(v)
	return nil
}

// Flag renders booleans as 0/1 indicators.
type Flag bool

// MarshalText implements encoding.TextMarshaler.
func (f Flag) MarshalText() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Flag) UnmarshalText(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "1", "true", "True", "1.0":
		*f = true
	case "0", "false", "False", "0.0":
		*f = false
	default:
		return eris.Errorf("report: parse flag %q", b)
	}
	return nil
}

// Date renders a calendar date as YYYY-MM-DD.
type Date time.Time

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(time.Time(d).Format(time.DateOnly)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	t, err := time.Parse(time.DateOnly, string(bytes.TrimSpace(b)))
	if err != nil {
		return eris.Wrapf(err, "report: parse date %q", b)
	}
	*d = Date(t)
	return nil
}

// writeCSV encodes rows (a slice of structs) to path with a header row.
func writeCSV(path string, rows any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "report: create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	if err := enc.Encode(rows); err != nil {
		return eris.Wrapf(err, "report: encode %s", path)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return f.Close()
}

// readCSV decodes path into out (a pointer to a slice of structs).
func readCSV(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "report: read %s", path)
	}
	if err := csvutil.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "report: decode %s", path)
	}
	return nil
}
