package excel

import (
	"context"
	"fmt"
	"math"
	"regexp"

	"aarambh-client/internal/model"
	"aarambh-client/pkg/errors"
)

type Validator struct {
	submissionIDRegex *regexp.Regexp
	maxScore          float64
}

func NewValidator(maxScore float64) *Validator {
	return &Validator{
		submissionIDRegex: regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`),
		maxScore:          maxScore,
	}
}

// Validate checks every row and returns the first failure.
func (v *Validator) Validate(ctx context.Context, grades []model.GradeRow) error {
	if len(grades) == 0 {
		return errors.ErrSchemaValidation
	}

	for _, grade := range grades {
		if err := v.ValidateRow(grade); err != nil {
			return fmt.Errorf("row %d: %w", grade.Row, err)
		}
	}

	return nil
}

func (v *Validator) ValidateRow(grade model.GradeRow) error {
	if !v.submissionIDRegex.MatchString(grade.SubmissionID) {
		return errors.ValidationError{
			Field:   "submission_id",
			Value:   grade.SubmissionID,
			Message: "must be 1-64 letters, digits, '-' or '_'",
		}
	}

	if !grade.ScoreSet || math.IsNaN(grade.Score) || math.IsInf(grade.Score, 0) {
		return errors.ValidationError{
			Field:   "score",
			Value:   grade.RawScore,
			Message: "must be a number",
		}
	}

	if grade.Score < 0 || grade.Score > v.maxScore {
		return errors.ValidationError{
			Field:   "score",
			Value:   grade.Score,
			Message: fmt.Sprintf("must be between 0 and %g", v.maxScore),
		}
	}

	if len(grade.Feedback) > 5000 {
		return errors.ValidationError{
			Field:   "feedback",
			Value:   len(grade.Feedback),
			Message: "must be at most 5000 characters",
		}
	}

	return nil
}
