// Package export writes training metrics to spreadsheet workbooks.
package export

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"redsim/internal/model"
)

const (
	episodeSheet = "Episodes"
	outcomeSheet = "Outcomes"
)

// EpisodeWorkbook builds an xlsx workbook from episode summaries: one row
// per episode plus an outcome tally sheet. The caller owns closing the file.
func EpisodeWorkbook(runID string, summaries []model.EpisodeSummary) (*excelize.File, error) {
	if len(summaries) == 0 {
		return nil, errors.New("no episode summaries to export")
	}

	f := excelize.NewFile()
	if _, err := f.NewSheet(episodeSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(outcomeSheet); err != nil {
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headers := []interface{}{"Episode", "Steps", "Reward", "Epsilon", "Outcome"}
	if err := f.SetSheetRow(episodeSheet, "A1", &headers); err != nil {
		return nil, err
	}

	tally := make(map[model.Outcome]int)
	for i, summary := range summaries {
		row := []interface{}{summary.Episode, summary.Steps, summary.Reward, summary.Epsilon, string(summary.Outcome)}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(episodeSheet, cell, &row); err != nil {
			return nil, err
		}
		tally[summary.Outcome]++
	}

	outcomeHeaders := []interface{}{"Run", "Outcome", "Episodes"}
	if err := f.SetSheetRow(outcomeSheet, "A1", &outcomeHeaders); err != nil {
		return nil, err
	}
	outcomeRow := 2
	for _, outcome := range []model.Outcome{model.OutcomeFlagCaptured, model.OutcomeDetected, model.OutcomeTimeout} {
		count, ok := tally[outcome]
		if !ok {
			continue
		}
		row := []interface{}{runID, string(outcome), count}
		cell := fmt.Sprintf("A%d", outcomeRow)
		if err := f.SetSheetRow(outcomeSheet, cell, &row); err != nil {
			return nil, err
		}
		outcomeRow++
	}

	return f, nil
}

// WriteEpisodeWorkbook renders the workbook and saves it at path.
func WriteEpisodeWorkbook(path, runID string, summaries []model.EpisodeSummary) error {
	f, err := EpisodeWorkbook(runID, summaries)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}
