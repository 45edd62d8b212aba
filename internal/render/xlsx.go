package render

import (
	"fmt"

	"github.com/joelkehle/efficacylens/internal/efficacylens"
	"github.com/xuri/excelize/v2"
)

const summarySheet = "Summary"

// Workbook exports the comparison as an XLSX file: a summary sheet plus one
// sheet per comparison category when analysis ran.
func Workbook(env efficacylens.ResponseEnvelope) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	rows := summaryRows(env)
	for i, row := range rows {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", fmt.Sprintf("A%d", len(rows)), bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 32); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(summarySheet, "B", "B", 100); err != nil {
		return nil, err
	}

	if env.Payload != nil {
		for _, t := range efficacylens.BuildTables(env.Payload.ComparisonTable) {
			if err := writeTableSheet(f, t, bold); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func summaryRows(env efficacylens.ResponseEnvelope) [][]string {
	rows := [][]string{
		{"Run ID", env.RunID},
		{"Status", string(env.Status)},
		{efficacylens.Publication1, env.Publication1},
		{efficacylens.Publication2, env.Publication2},
	}
	if v := env.Validation; v != nil {
		rows = append(rows,
			[]string{"Publication 1 disease", v.Profile1.PrimaryDisease},
			[]string{"Publication 2 disease", v.Profile2.PrimaryDisease},
			[]string{"Disease match", string(v.Decision)},
			[]string{"Compatibility reason", v.Reason},
		)
	}
	if env.Payload != nil {
		rows = append(rows,
			[]string{"Investment Opportunity", env.Payload.ExecutiveSummary.InvestmentOpportunity},
			[]string{"Risk Assessment and Strategy", env.Payload.ExecutiveSummary.RiskAssessmentAndStrategy},
		)
	}
	if r := env.Rejection; r != nil {
		rows = append(rows, []string{"Rejection reason", r.Reason})
	}
	if env.Error != "" {
		rows = append(rows, []string{"Error", env.Error})
	}
	return append(rows, []string{"Disclaimer", efficacylens.Disclaimer})
}

func writeTableSheet(f *excelize.File, t efficacylens.Table, headerStyle int) error {
	if _, err := f.NewSheet(t.Title); err != nil {
		return err
	}
	if err := setRow(f, t.Title, 1, t.Headers); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(t.Headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(t.Title, "A1", last, headerStyle); err != nil {
		return err
	}
	for i, r := range t.Rows {
		if err := setRow(f, t.Title, i+2, []string{r.Label, r.Values[0], r.Values[1]}); err != nil {
			return err
		}
	}
	return f.SetColWidth(t.Title, "A", "C", 40)
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return f.SetSheetRow(sheet, cell, &vals)
}
