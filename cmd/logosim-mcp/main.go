// Command logosim-mcp exposes the logosim API as MCP tools over stdio.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// apiError mirrors the API's structured error.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) String() string { return fmt.Sprintf("[%s] %s", e.Code, e.Message) }

type fingerprintResponse struct {
	Success     bool `json:"success"`
	Fingerprint *struct {
		URL    string            `json:"url"`
		Hashes map[string]string `json:"hashes"`
		Width  int               `json:"width"`
		Height int               `json:"height"`
		Format string            `json:"format"`
	} `json:"fingerprint"`
	CacheStatus string    `json:"cache_status"`
	Error       *apiError `json:"error"`
}

type logoResponse struct {
	Success  bool      `json:"success"`
	Domain   string    `json:"domain"`
	URL      string    `json:"url"`
	Strategy string    `json:"strategy"`
	Fallback bool      `json:"fallback"`
	Error    *apiError `json:"error"`
}

type clusterJobResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Total    int    `json:"total"`
	Clusters []struct {
		ID      int      `json:"cluster_id"`
		Size    int      `json:"size"`
		Domains []string `json:"domains"`
	} `json:"clusters"`
	Stats *struct {
		LogosExtracted int `json:"logos_extracted"`
		LogosProcessed int `json:"logos_processed"`
		ClustersFound  int `json:"clusters_found"`
	} `json:"stats"`
	Error *apiError `json:"error"`
}

func main() {
	apiURL := os.Getenv("LOGOSIM_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("LOGOSIM_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "LOGOSIM_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"logosim",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.AddTool(mcp.NewTool("find_logo",
		mcp.WithDescription("Find the most likely logo image URL of a website. Falls back to /favicon.ico when no logo markup is found."),
		mcp.WithString("domain",
			mcp.Required(),
			mcp.Description("Domain of the website, e.g. example.com"),
		),
	), handleFindLogo(apiURL, apiKey))

	s.AddTool(mcp.NewTool("fingerprint_logo",
		mcp.WithDescription("Download an image and return its 64-bit perceptual hashes (phash, dhash, ahash, whash) as hex."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Absolute http(s) URL of the image"),
		),
	), handleFingerprint(apiURL, apiKey))

	s.AddTool(mcp.NewTool("cluster_domains",
		mcp.WithDescription("Group websites whose logos are perceptually near-identical. Runs a full extraction, hashing and clustering job and returns the multi-member clusters."),
		mcp.WithArray("domains",
			mcp.Required(),
			mcp.Description("List of domains to cluster"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Maximum Hamming distance between logo hashes for two domains to be linked (default: 5)"),
		),
	), handleClusterDomains(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// call sends a request to the logosim API and decodes the JSON response into out.
func call(ctx context.Context, client *http.Client, method, url, apiKey string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}

func handleFindLogo(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		domain, err := request.RequireString("domain")
		if err != nil {
			return mcp.NewToolResultError("domain is required"), nil
		}

		var resp logoResponse
		if err := call(ctx, client, http.MethodPost, apiURL+"/api/v1/logo", apiKey, map[string]string{"domain": domain}, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(errText(resp.Error, "logo lookup failed")), nil
		}

		source := resp.Strategy
		if resp.Fallback {
			source = "favicon fallback"
		}
		return mcp.NewToolResultText(fmt.Sprintf("Domain: %s\nLogo: %s\nSource: %s", resp.Domain, resp.URL, source)), nil
	}
}

func handleFingerprint(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		var resp fingerprintResponse
		payload := map[string]any{"url": url, "max_age": 3_600_000}
		if err := call(ctx, client, http.MethodPost, apiURL+"/api/v1/fingerprint", apiKey, payload, &resp); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success || resp.Fingerprint == nil {
			return mcp.NewToolResultError(errText(resp.Error, "fingerprint failed")), nil
		}

		fp := resp.Fingerprint
		var sb strings.Builder
		fmt.Fprintf(&sb, "Image: %s (%s, %dx%d)\n", fp.URL, fp.Format, fp.Width, fp.Height)
		for _, k := range []string{"phash", "dhash", "ahash", "whash"} {
			if v := fp.Hashes[k]; v != "" {
				fmt.Fprintf(&sb, "%s: %s\n", k, v)
			}
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleClusterDomains(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 60 * time.Second}
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		domains, err := request.RequireStringSlice("domains")
		if err != nil {
			return mcp.NewToolResultError("domains is required and must be an array of strings"), nil
		}
		payload := map[string]any{"domains": domains}
		if th, ok := request.GetArguments()["threshold"]; ok {
			payload["threshold"] = th
		}

		var job clusterJobResponse
		if err := call(ctx, client, http.MethodPost, apiURL+"/api/v1/cluster", apiKey, payload, &job); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if job.ID == "" {
			return mcp.NewToolResultError(errText(job.Error, "cluster job creation failed")), nil
		}

		// Poll until the job leaves the processing state.
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for job.Status == "processing" {
			select {
			case <-ctx.Done():
				return mcp.NewToolResultError(fmt.Sprintf("polling cluster job %s: %v", job.ID, ctx.Err())), nil
			case <-ticker.C:
			}
			if err := call(ctx, client, http.MethodGet, apiURL+"/api/v1/cluster/"+job.ID, apiKey, nil, &job); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
		if job.Status != "completed" {
			return mcp.NewToolResultError(fmt.Sprintf("cluster job %s %s: %s", job.ID, job.Status, errText(job.Error, "no details"))), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Job %s: %d domains", job.ID, job.Total)
		if st := job.Stats; st != nil {
			fmt.Fprintf(&sb, ", %d logos found, %d fingerprinted, %d clusters", st.LogosExtracted, st.LogosProcessed, st.ClustersFound)
		}
		sb.WriteString("\n\n")
		shown := 0
		for _, c := range job.Clusters {
			if c.Size < 2 {
				continue
			}
			shown++
			fmt.Fprintf(&sb, "--- cluster %d (%d domains) ---\n%s\n\n", c.ID, c.Size, strings.Join(c.Domains, "\n"))
		}
		if shown == 0 {
			sb.WriteString("No two domains share a near-identical logo.\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func errText(e *apiError, fallback string) string {
	if e == nil {
		return fallback
	}
	return e.String()
}
