package excel

import (
	"context"

	"aarambh-client/internal/model"
)

type ParsingStrategy interface {
	Parse(ctx context.Context, data []byte) ([]model.GradeRow, error)
	Validate(ctx context.Context, grades []model.GradeRow) error
	ValidateRow(grade model.GradeRow) error
}

type ExcelStrategy struct {
	parser    *Parser
	validator *Validator
}

func NewExcelStrategy(maxScore float64) ParsingStrategy {
	return &ExcelStrategy{
		parser:    NewParser(),
		validator: NewValidator(maxScore),
	}
}

func (s *ExcelStrategy) Parse(ctx context.Context, data []byte) ([]model.GradeRow, error) {
	return s.parser.Parse(ctx, data)
}

func (s *ExcelStrategy) Validate(ctx context.Context, grades []model.GradeRow) error {
	return s.validator.Validate(ctx, grades)
}

func (s *ExcelStrategy) ValidateRow(grade model.GradeRow) error {
	return s.validator.ValidateRow(grade)
}
