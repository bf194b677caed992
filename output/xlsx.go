package output

import (
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/use-agent/logosim/pipeline"
)

const (
	sheetClusters   = "Clusters"
	sheetStatistics = "Statistics"
)

// writeXLSX renders the cluster rows and the run statistics as two sheets.
func writeXLSX(out io.Writer, res *pipeline.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetClusters); err != nil {
		return err
	}
	header := make([]any, len(csvHeader))
	for i, h := range csvHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetClusters, "A1", &header); err != nil {
		return err
	}
	for i, row := range Rows(res) {
		id, _ := strconv.Atoi(row[0])
		size, _ := strconv.Atoi(row[3])
		vals := []any{id, row[1], row[2], size}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetClusters, cell, &vals); err != nil {
			return err
		}
	}
	if err := f.SetPanes(sheetClusters, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return err
	}

	if _, err := f.NewSheet(sheetStatistics); err != nil {
		return err
	}
	s := res.Stats
	stats := [][]any{
		{"metric", "value"},
		{"total_domains", s.TotalDomains},
		{"logos_extracted", s.LogosExtracted},
		{"logos_processed", s.LogosProcessed},
		{"clusters_found", s.ClustersFound},
		{"multi_member_clusters", s.MultiMemberClusters},
		{"largest_cluster", s.LargestCluster},
		{"rejected_records", s.RejectedRecords},
		{"edges", s.Edges},
		{"max_degree", s.MaxDegree},
		{"threshold", s.Threshold},
		{"duration_seconds", s.DurationSeconds},
	}
	for i, row := range stats {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheetStatistics, cell, &row); err != nil {
			return err
		}
	}

	return f.Write(out)
}
