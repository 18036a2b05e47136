package excel

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"aarambh-client/internal/model"
	"aarambh-client/pkg/errors"

	"github.com/xuri/excelize/v2"
)

const (
	colSubmissionID = "submission_id"
	colScore        = "score"
	colFeedback     = "feedback"
)

// Parser reads a grade sheet: the first worksheet, a header row naming
// submission_id, score and optionally feedback, then one row per grade.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(ctx context.Context, data []byte) ([]model.GradeRow, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ErrInvalidFileFormat
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	if len(rows) < 2 { // Header + at least one data row
		return nil, errors.ErrInvalidFileFormat
	}

	columnMap := make(map[string]int)
	for i, col := range rows[0] {
		columnMap[strings.ToLower(strings.TrimSpace(col))] = i
	}

	for _, col := range []string{colSubmissionID, colScore} {
		if _, exists := columnMap[col]; !exists {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	var grades []model.GradeRow
	for i, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if blank(row) {
			continue
		}
		grades = append(grades, p.parseRow(row, columnMap, i+2)) // i+2 for the sheet's row number
	}

	if len(grades) == 0 {
		return nil, errors.ErrInvalidFileFormat
	}
	return grades, nil
}

// parseRow never fails; an unreadable or non-finite score leaves ScoreSet false for the
// validator to report against the row.
func (p *Parser) parseRow(row []string, columnMap map[string]int, rowNum int) model.GradeRow {
	getValue := func(colName string) string {
		if idx, exists := columnMap[colName]; exists && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	grade := model.GradeRow{
		Row:          rowNum,
		SubmissionID: getValue(colSubmissionID),
		Feedback:     getValue(colFeedback),
		RawScore:     getValue(colScore),
	}
	if score, err := strconv.ParseFloat(grade.RawScore, 64); err == nil && !math.IsNaN(score) && !math.IsInf(score, 0) {
		grade.Score = score
		grade.ScoreSet = true
	}
	return grade
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
