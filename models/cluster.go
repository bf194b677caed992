package models

import "time"

// Cluster is one connected component of the similarity graph.
type Cluster struct {
	ID      int      `json:"cluster_id"`
	Size    int      `json:"size"`
	Domains []string `json:"domains"`
}

// Stats summarizes one pipeline run.
type Stats struct {
	TotalDomains        int     `json:"total_domains"`
	LogosExtracted      int     `json:"logos_extracted"`
	LogosProcessed      int     `json:"logos_processed"`
	ClustersFound       int     `json:"clusters_found"`
	MultiMemberClusters int     `json:"multi_member_clusters"`
	LargestCluster      int     `json:"largest_cluster"`
	RejectedRecords     int     `json:"rejected_records"`
	Edges               int     `json:"edges"`
	MaxDegree           int     `json:"max_degree"`
	Threshold           int     `json:"threshold"`
	DurationSeconds     float64 `json:"duration_seconds"`
}

// Phase names a pipeline stage in progress reports.
type Phase string

const (
	PhaseExtract Phase = "extract"
	PhaseHash    Phase = "hash"
	PhaseCluster Phase = "cluster"
)

// Progress is a side-channel observation emitted while a run advances.
type Progress struct {
	Phase Phase `json:"phase"`

	// Done and Total count domains for extraction and work items for hashing.
	Done  int `json:"done"`
	Total int `json:"total"`

	// Found is the cumulative number of domains with a non-empty URL
	// (extraction) or a fingerprint (hashing).
	Found int `json:"found"`

	// Batch and Batches locate the extraction batch just completed.
	Batch   int `json:"batch,omitempty"`
	Batches int `json:"batches,omitempty"`

	At time.Time `json:"at"`
}
