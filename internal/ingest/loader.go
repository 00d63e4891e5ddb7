// Package ingest loads raw retailer extracts into tables keyed by the
// retailer's native column names.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/elasticity-cli/internal/contract"
	"github.com/sells-group/elasticity-cli/internal/fetcher"
	"github.com/sells-group/elasticity-cli/internal/model"
)

const bom = "\ufeff"

// Load reads the extract at path under contract c. The first SkipRows lines
// are banner text; the next line is the header. CSV, TSV and XLSX extracts
// are recognised by extension.
func Load(ctx context.Context, c contract.Contract, path string) (*model.RawTable, error) {
	log := zap.L().With(zap.String("component", "ingest"), zap.String("retailer", c.Name))

	records, err := readRecords(ctx, c, path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &model.SourceFormatError{
			Retailer: c.Name,
			Path:     path,
			Reason:   fmt.Sprintf("no header row after skipping %d rows", c.SkipRows),
		}
	}

	header, err := buildHeader(c, path, records[0])
	if err != nil {
		return nil, err
	}

	table := &model.RawTable{Retailer: c.Name, Path: path, Header: header}
	if err := checkColumns(c, table); err != nil {
		return nil, err
	}

	blank := 0
	for i, rec := range records[1:] {
		if isBlank(rec) {
			blank++
			continue
		}
		values := make(map[string]string, len(header))
		for j, col := range header {
			if j < len(rec) {
				values[col] = strings.TrimSpace(rec[j])
			} else {
				values[col] = ""
			}
		}
		table.Rows = append(table.Rows, model.RawRow{
			Retailer: c.Name,
			Line:     c.SkipRows + 2 + i,
			Values:   values,
		})
	}

	log.Info("loaded extract",
		zap.String("path", path),
		zap.Int("rows", len(table.Rows)),
		zap.Int("blank", blank),
	)

	for _, set := range c.IntegrityChecks {
		report, err := RunIntegrity(set, table)
		if err != nil {
			return nil, err
		}
		report.Log(log)
	}
	return table, nil
}

func readRecords(ctx context.Context, c contract.Contract, path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SkipRows: c.SkipRows, TrimSpace: true})
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: read %s", path)
		}
		return rows, nil
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		opts := fetcher.CSVOptions{SkipLines: c.SkipRows, LazyQuotes: true, TrimSpace: true}
		if strings.EqualFold(filepath.Ext(path), ".tsv") {
			opts.Delimiter = '\t'
		}
		rows, err := fetcher.ReadCSV(ctx, f, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(err, "ingest: read cancelled")
			}
			return nil, &model.SourceFormatError{Retailer: c.Name, Path: path, Reason: err.Error()}
		}
		return rows, nil
	}
}

// buildHeader cleans the header row and renames the identifier column.
func buildHeader(c contract.Contract, path string, raw []string) ([]string, error) {
	header := make([]string, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, h := range raw {
		if i == 0 {
			h = strings.TrimPrefix(h, bom)
		}
		h = strings.TrimSpace(h)
		if h != "" && seen[h] {
			return nil, &model.SourceFormatError{Retailer: c.Name, Path: path, Line: c.SkipRows + 1, Column: h, Reason: "duplicate column in header"}
		}
		seen[h] = true
		header[i] = h
	}

	target := c.IdentifierColumn()
	if c.ProductColumn == target {
		return header, nil
	}
	if seen[target] {
		return nil, &model.SourceFormatError{Retailer: c.Name, Path: path, Line: c.SkipRows + 1, Column: target,
			Reason: "column already present; cannot rename " + c.ProductColumn + " to it"}
	}
	for i, h := range header {
		if h == c.ProductColumn {
			header[i] = target
		}
	}
	return header, nil
}

// checkColumns fails on the first column a later stage needs but the
// extract lacks.
func checkColumns(c contract.Contract, table *model.RawTable) error {
	for _, col := range c.RequiredColumns() {
		if table.HasColumn(col) {
			continue
		}
		if col == c.IdentifierColumn() && c.ProductColumn != col {
			col = c.ProductColumn
		}
		return &model.SourceFormatError{Retailer: table.Retailer, Path: table.Path, Column: col, Reason: "required column missing"}
	}
	if c.Volume.Column != "" && table.HasColumn(c.Volume.Column) {
		return nil
	}
	if table.HasColumn(c.Volume.UnitColumn) {
		return nil
	}
	missing := c.Volume.UnitColumn
	if c.Volume.Column != "" {
		missing = c.Volume.Column + " or " + c.Volume.UnitColumn
	}
	return &model.SourceFormatError{Retailer: table.Retailer, Path: table.Path, Column: missing, Reason: "neither a volume column nor a unit column is present"}
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
