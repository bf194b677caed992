package input

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"example.com", "example.com"},
		{"  Example.COM \t", "example.com"},
		{"https://example.com/about?x=1", "example.com"},
		{"http://user@shop.example.org#top", "shop.example.org"},
		{"example.com.", "example.com"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoadDomains(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    []string
	}{
		{
			name:    "text with comments",
			file:    "domains.txt",
			content: "# seed list\nacme.com\n\nhttps://ACME.com/\nbeta.io\n",
			want:    []string{"acme.com", "beta.io"},
		},
		{
			name:    "csv with domain header",
			file:    "domains.csv",
			content: "id,domain\n1,acme.com\n2,beta.io\n3,acme.com\n",
			want:    []string{"acme.com", "beta.io"},
		},
		{
			name:    "csv without header",
			file:    "list.csv",
			content: "acme.com,x\nbeta.io\n",
			want:    []string{"acme.com", "beta.io"},
		},
		{
			name:    "csv with other header",
			file:    "sites.csv",
			content: "website,rank\nacme.com,1\nbeta.io,2\n",
			want:    []string{"acme.com", "beta.io"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadDomains(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("LoadDomains: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadDomains_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{{"rank", "Domain"}, {1, "acme.com"}, {2, "www.beta.io"}, {3, ""}}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	p := filepath.Join(t.TempDir(), "domains.xlsx")
	if err := f.SaveAs(p); err != nil {
		t.Fatal(err)
	}

	got, err := LoadDomains(p)
	if err != nil {
		t.Fatalf("LoadDomains: %v", err)
	}
	want := []string{"acme.com", "www.beta.io"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLoadDomains_Errors(t *testing.T) {
	if _, err := LoadDomains(writeFile(t, "empty.txt", "# nothing\n\n")); !errors.Is(err, ErrNoDomains) {
		t.Errorf("empty file err = %v, want ErrNoDomains", err)
	}
	if _, err := LoadDomains(writeFile(t, "data.parquet", "PAR1")); err == nil {
		t.Error("expected error for corrupt parquet")
	}
	if _, err := LoadDomains(writeFile(t, "data.json", "[]")); err == nil {
		t.Error("expected error for unsupported extension")
	}
	if _, err := LoadDomains(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadDomains_Parquet(t *testing.T) {
	type site struct {
		Rank   int64  `parquet:"rank"`
		Domain string `parquet:"domain"`
	}
	p := filepath.Join(t.TempDir(), "logos.snappy.parquet")
	rows := []site{{1, "acme.com"}, {2, "HTTPS://Beta.io/"}, {3, "acme.com"}, {4, ""}}
	if err := parquet.WriteFile(p, rows, parquet.Compression(&parquet.Snappy)); err != nil {
		t.Fatal(err)
	}

	got, err := LoadDomains(p)
	if err != nil {
		t.Fatalf("LoadDomains: %v", err)
	}
	want := []string{"acme.com", "beta.io"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLoadDomains_ParquetFirstColumn(t *testing.T) {
	type site struct {
		Website string `parquet:"website"`
	}
	p := filepath.Join(t.TempDir(), "sites.parquet")
	if err := parquet.WriteFile(p, []site{{"gamma.org"}, {"delta.net"}}); err != nil {
		t.Fatal(err)
	}

	got, err := LoadDomains(p)
	if err != nil {
		t.Fatalf("LoadDomains: %v", err)
	}
	want := []string{"gamma.org", "delta.net"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
