// Command benchmark measures logo lookup and fingerprint latency against
// a running logosim server.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "logosim API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "number of runs per domain for averaging")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Sites with a mix of link icons, meta images and favicon-only homepages.
var testDomains = []string{
	"example.com",
	"go.dev",
	"github.com",
	"wikipedia.org",
	"bbc.com",
}

// --- Response types (mirror the models package) ---

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type logoResponse struct {
	Success  bool         `json:"success"`
	URL      string       `json:"url"`
	Strategy string       `json:"strategy"`
	Fallback bool         `json:"fallback"`
	TookMs   int64        `json:"took_ms"`
	Error    *errorDetail `json:"error"`
}

type fingerprintResponse struct {
	Success     bool `json:"success"`
	Fingerprint *struct {
		Hashes map[string]string `json:"hashes"`
	} `json:"fingerprint"`
	TookMs int64        `json:"took_ms"`
	Error  *errorDetail `json:"error"`
}

// --- Benchmark result types ---

type runResult struct {
	Run           int    `json:"run"`
	LogoMs        int64  `json:"logo_ms"`
	FingerprintMs int64  `json:"fingerprint_ms"`
	LogoURL       string `json:"logo_url"`
	Strategy      string `json:"strategy"`
	PHash         string `json:"phash,omitempty"`
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
}

type domainResult struct {
	Domain         string      `json:"domain"`
	Runs           []runResult `json:"runs"`
	AvgLogoMs      float64     `json:"avg_logo_ms"`
	AvgFingerprint float64     `json:"avg_fingerprint_ms"`
	SuccessRate    float64     `json:"success_rate"`
	StableHash     bool        `json:"stable_hash"`
}

type benchmarkReport struct {
	Timestamp     string         `json:"timestamp"`
	APIURL        string         `json:"api_url"`
	RunsPerDomain int            `json:"runs_per_domain"`
	Results       []domainResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== logosim benchmark ===")
	fmt.Printf("API URL:      %s\n", *apiURL)
	fmt.Printf("Runs/domain:  %d\n", *runs)
	fmt.Printf("Output:       %s\n\n", *output)

	client := &http.Client{Timeout: 90 * time.Second}
	if resp, err := client.Get(*apiURL + "/api/v1/health"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	} else {
		resp.Body.Close()
	}

	report := benchmarkReport{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		APIURL:        *apiURL,
		RunsPerDomain: *runs,
	}

	for _, d := range testDomains {
		fmt.Printf("Benchmarking %s ...\n", d)
		dr := domainResult{Domain: d}
		for i := 1; i <= *runs; i++ {
			rr := benchmarkDomain(client, d, i)
			if rr.Success {
				fmt.Printf("  Run %d/%d OK  logo %dms  hash %dms  %s\n", i, *runs, rr.LogoMs, rr.FingerprintMs, rr.PHash)
			} else {
				fmt.Printf("  Run %d/%d FAILED: %s\n", i, *runs, rr.Error)
			}
			dr.Runs = append(dr.Runs, rr)
		}
		summarize(&dr)
		report.Results = append(report.Results, dr)
	}

	fmt.Println()
	printTable(report.Results)

	data, err := json.MarshalIndent(report, "", "  ")
	if err == nil {
		err = os.WriteFile(*output, data, 0o644)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func post(client *http.Client, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, *apiURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func benchmarkDomain(client *http.Client, domain string, run int) runResult {
	rr := runResult{Run: run}

	var lr logoResponse
	if err := post(client, "/api/v1/logo", map[string]string{"domain": domain}, &lr); err != nil {
		rr.Error = fmt.Sprintf("logo request: %v", err)
		return rr
	}
	rr.LogoMs, rr.LogoURL, rr.Strategy = lr.TookMs, lr.URL, lr.Strategy
	if lr.Fallback {
		rr.Strategy = "fallback"
	}

	var fr fingerprintResponse
	if err := post(client, "/api/v1/fingerprint", map[string]any{"url": lr.URL}, &fr); err != nil {
		rr.Error = fmt.Sprintf("fingerprint request: %v", err)
		return rr
	}
	rr.FingerprintMs = fr.TookMs
	if !fr.Success || fr.Fingerprint == nil {
		if fr.Error != nil {
			rr.Error = fr.Error.Code + ": " + fr.Error.Message
		}
		return rr
	}
	rr.PHash = fr.Fingerprint.Hashes["phash"]
	rr.Success = true
	return rr
}

// summarize averages successful runs and checks that every run produced
// the same primary hash.
func summarize(dr *domainResult) {
	var ok int
	hashes := map[string]struct{}{}
	for _, r := range dr.Runs {
		dr.AvgLogoMs += float64(r.LogoMs)
		if !r.Success {
			continue
		}
		ok++
		dr.AvgFingerprint += float64(r.FingerprintMs)
		hashes[r.PHash] = struct{}{}
	}
	if n := len(dr.Runs); n > 0 {
		dr.AvgLogoMs /= float64(n)
		dr.SuccessRate = float64(ok) / float64(n)
	}
	if ok > 0 {
		dr.AvgFingerprint /= float64(ok)
	}
	dr.StableHash = ok > 0 && len(hashes) == 1
}

func printTable(results []domainResult) {
	fmt.Println(strings.Repeat("─", 80))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Domain\tAvg Logo\tAvg Hash\tStrategy\tSuccess\tStable\n")
	fmt.Fprintf(w, "──────\t────────\t────────\t────────\t───────\t──────\n")
	for _, r := range results {
		strategy := "-"
		if len(r.Runs) > 0 {
			strategy = r.Runs[0].Strategy
		}
		fmt.Fprintf(w, "%s\t%dms\t%dms\t%s\t%.0f%%\t%v\n",
			r.Domain, int64(r.AvgLogoMs), int64(r.AvgFingerprint), strategy, r.SuccessRate*100, r.StableHash)
	}
	w.Flush()
	fmt.Println(strings.Repeat("─", 80))
}
