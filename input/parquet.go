package input

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// readParquet returns the string values of the "domain" column (matched
// case-insensitively), or of the first top-level column. Nulls are
// dropped.
func readParquet(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}

	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("input: open %s: %w", path, err)
	}
	fields := pf.Schema().Fields()
	if len(fields) == 0 {
		return nil, ErrNoDomains
	}
	name := fields[0].Name()
	for _, fld := range fields {
		if strings.EqualFold(fld.Name(), "domain") {
			name = fld.Name()
			break
		}
	}
	leaf, ok := pf.Schema().Lookup(name)
	if !ok {
		return nil, fmt.Errorf("input: %s: column %q is not a leaf column", path, name)
	}

	var out []string
	for _, rg := range pf.RowGroups() {
		vals, err := columnStrings(rg.ColumnChunks()[leaf.ColumnIndex])
		if err != nil {
			return nil, fmt.Errorf("input: read %s column %q: %w", path, name, err)
		}
		out = append(out, vals...)
	}
	return out, nil
}

func columnStrings(chunk parquet.ColumnChunk) ([]string, error) {
	pages := chunk.Pages()
	defer pages.Close()

	var out []string
	buf := make([]parquet.Value, 256)
	for {
		page, err := pages.ReadPage()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		values := page.Values()
		for {
			n, err := values.ReadValues(buf)
			for _, v := range buf[:n] {
				if !v.IsNull() {
					out = append(out, string(v.ByteArray()))
				}
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				parquet.Release(page)
				return nil, err
			}
		}
		parquet.Release(page)
	}
}
