// Package input loads the list of domains to process.
package input

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoDomains is returned when a file yields no usable domain.
var ErrNoDomains = errors.New("input: no domains found")

// LoadDomains reads domains from path. The format follows the extension:
// .txt (one per line, # comments), .csv (column "domain", else the first
// column), .xlsx (first sheet, column "domain", else the first column) or
// .parquet (column "domain", else the first top-level column).
// Results are normalized and de-duplicated, keeping first occurrence.
func LoadDomains(path string) ([]string, error) {
	var (
		raw []string
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt", "":
		raw, err = readText(path)
	case ".csv":
		raw, err = readCSV(path)
	case ".xlsx":
		raw, err = readXLSX(path)
	case ".parquet":
		raw, err = readParquet(path)
	default:
		return nil, fmt.Errorf("input: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, err
	}

	domains := Dedupe(raw)
	if len(domains) == 0 {
		return nil, ErrNoDomains
	}
	return domains, nil
}

// Normalize reduces s to a bare lowercase host. "https://Example.com/x"
// becomes "example.com". It returns "" for blank input.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(s, ".")
}

// Dedupe normalizes every entry and drops blanks and repeats.
func Dedupe(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		d := Normalize(r)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

func readText(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("input: read %s: %w", path, err)
	}
	return out, nil
}

func readCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("input: parse %s: %w", path, err)
		}
		rows = append(rows, rec)
	}
	return column(rows), nil
}

func readXLSX(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("input: open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoDomains
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("input: read sheet %q: %w", sheets[0], err)
	}
	return column(rows), nil
}

// column picks the "domain" column when the first row names one, and the
// first column otherwise. Without a "domain" header, a first cell that
// cannot be a host (no dot, e.g. "website") is taken as a header and
// skipped.
func column(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}
	idx, skip := 0, -1
	for i, h := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(h), "domain") {
			idx, skip = i, 1
			break
		}
	}
	if skip < 0 {
		skip = 0
		if len(rows[0]) > 0 && !strings.Contains(Normalize(rows[0][0]), ".") {
			skip = 1
		}
	}

	out := make([]string, 0, len(rows)-skip)
	for _, row := range rows[skip:] {
		if idx < len(row) {
			out = append(out, row[idx])
		}
	}
	return out
}
