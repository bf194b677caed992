// Package output persists pipeline results: cluster and statistics files,
// an optional spreadsheet, and an optional SQLite store.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/use-agent/logosim/config"
	"github.com/use-agent/logosim/models"
	"github.com/use-agent/logosim/pipeline"
)

// File names written into the output directory.
const (
	ClustersJSON   = "clusters.json"
	ClustersCSV    = "clusters.csv"
	StatisticsJSON = "statistics.json"
	ClustersXLSX   = "clusters.xlsx"
)

// Writer writes run results into a directory.
type Writer struct {
	dir  string
	xlsx bool
}

// NewWriter creates a Writer from the output configuration.
func NewWriter(cfg config.OutputConfig) *Writer {
	dir := cfg.Dir
	if dir == "" {
		dir = "output"
	}
	return &Writer{dir: dir, xlsx: cfg.XLSX}
}

// Write stores res and returns the paths it wrote. Each file is written
// to a temporary sibling and renamed into place, so a failed run never
// leaves a truncated file behind.
func (w *Writer) Write(res *pipeline.Result) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	type file struct {
		name  string
		write func(io.Writer) error
	}
	files := []file{
		{ClustersJSON, func(out io.Writer) error { return writeClustersJSON(out, res) }},
		{ClustersCSV, func(out io.Writer) error { return writeClustersCSV(out, res) }},
		{StatisticsJSON, func(out io.Writer) error { return writeJSON(out, res.Stats) }},
	}
	if w.xlsx {
		files = append(files, file{ClustersXLSX, func(out io.Writer) error { return writeXLSX(out, res) }})
	}

	written := make([]string, 0, len(files))
	for _, f := range files {
		p := filepath.Join(w.dir, f.name)
		if err := writeAtomic(p, f.write); err != nil {
			return written, fmt.Errorf("output: write %s: %w", f.name, err)
		}
		written = append(written, p)
	}

	slog.Info("results written", "dir", w.dir, "clusters", len(res.Clusters), "files", len(written))
	return written, nil
}

// Rows flattens clusters into one row per member domain.
func Rows(res *pipeline.Result) [][]string {
	var rows [][]string
	for _, c := range res.Clusters {
		for _, d := range c.Domains {
			rows = append(rows, []string{
				strconv.Itoa(c.ID),
				d,
				LogoURL(res, d),
				strconv.Itoa(c.Size),
			})
		}
	}
	return rows
}

// LogoURL is the URL the domain's fingerprint was computed from.
func LogoURL(res *pipeline.Result, domain string) string {
	if fp, ok := res.Fingerprints[domain]; ok && fp != nil && fp.URL != "" {
		return fp.URL
	}
	return res.URLs[domain]
}

var csvHeader = []string{"cluster_id", "domain", "logo_url", "cluster_size"}

func writeClustersCSV(out io.Writer, res *pipeline.Result) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	if err := cw.WriteAll(Rows(res)); err != nil {
		return err
	}
	return cw.Error()
}

func writeClustersJSON(out io.Writer, res *pipeline.Result) error {
	clusters := res.Clusters
	if clusters == nil {
		clusters = []models.Cluster{}
	}
	return writeJSON(out, clusters)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
