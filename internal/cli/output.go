package cli

import (
	"fmt"
	"io"

	"github.com/gosuri/uitable"

	"github.com/sara-ivanyos/mlflow-export-import-with-filter/internal/models"
)

func newTable() *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = 50
	table.Wrap = true
	return table
}

func printExperiments(w io.Writer, info *models.Info) {
	s := info.Status
	table := newTable()
	table.AddRow("Experiments", "Failed", "Runs", "OK", "Failed runs", "Duration")
	table.AddRow(s.Experiments, s.FailedExperiments, s.TotalRuns, s.OKRuns, s.FailedRuns, fmt.Sprintf("%.1fs", s.DurationSec))
	fmt.Fprintln(w, table)
	if info.Note != "" {
		fmt.Fprintf(w, "Note: %s\n", info.Note)
	}
}

func printModels(w io.Writer, info *models.Info) {
	s := info.Status
	table := newTable()
	table.AddRow("Models", "OK", "Failed", "Duration")
	table.AddRow(s.Models, s.OKModels, s.FailedModels, fmt.Sprintf("%.1fs", s.DurationSec))
	fmt.Fprintln(w, table)
	for _, name := range info.FailedModels {
		fmt.Fprintf(w, "Failed model: %s\n", name)
	}
}

func printSummary(w io.Writer, info *models.SummaryInfo) {
	if info.Status.Models != nil {
		printModels(w, info.Status.Models)
	}
	if info.Status.Experiments != nil {
		printExperiments(w, info.Status.Experiments)
	}
	fmt.Fprintf(w, "Total duration: %.1fs\n", info.Status.DurationSec)
}

func printImportReport(w io.Writer, report *models.ImportReport) {
	table := newTable()
	table.AddRow("Source version", "Source run", "Version", "Run", "Stage", "Error")
	for _, v := range report.Versions {
		errMsg := ""
		if v.Error != nil {
			errMsg = string(v.Error.Type)
		}
		table.AddRow(v.SourceVersion, v.SourceRunID, v.Version, v.RunID, v.Stage, errMsg)
	}
	fmt.Fprintf(w, "Model: %s (experiment %s)\n", report.ModelName, report.ExperimentID)
	fmt.Fprintln(w, table)
	fmt.Fprintf(w, "%d/%d versions imported in %.1fs\n", len(report.Versions)-report.Failed(), len(report.Versions), report.DurationSec)
}
