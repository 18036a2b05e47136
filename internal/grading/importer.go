package grading

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"aarambh-client/internal/excel"
	"aarambh-client/internal/logger"
	"aarambh-client/internal/model"
	"aarambh-client/internal/worker"
	"aarambh-client/pkg/errors"

	"github.com/rs/zerolog"
)

// Grader commits one grade.
type Grader interface {
	GradeSubmission(ctx context.Context, submissionID string, req model.GradeRequest) (*model.Submission, error)
}

// Importer applies a teacher's grade sheet through explicit grade calls.
// AI suggestions play no part in it.
type Importer struct {
	grader   Grader
	strategy excel.ParsingStrategy
	workers  int
	log      zerolog.Logger
}

func NewImporter(grader Grader, strategy excel.ParsingStrategy, workers int) *Importer {
	return &Importer{
		grader:   grader,
		strategy: strategy,
		workers:  workers,
		log:      logger.For("grade_import"),
	}
}

// Check parses data and validates every row without grading anything.
// It returns the row count, or the first invalid row.
func (im *Importer) Check(ctx context.Context, data []byte) (int, error) {
	rows, err := im.strategy.Parse(ctx, data)
	if err != nil {
		return 0, err
	}
	if err := im.strategy.Validate(ctx, rows); err != nil {
		return len(rows), err
	}
	return len(rows), nil
}

// Import parses data and grades every valid row. A sheet that cannot be
// read fails as a whole; bad rows and rejected grades are listed in the
// report and do not stop the others.
func (im *Importer) Import(ctx context.Context, data []byte) (*model.GradeImportReport, error) {
	startTime := time.Now()

	rows, err := im.strategy.Parse(ctx, data)
	if err != nil {
		return nil, err
	}

	report := &model.GradeImportReport{Total: len(rows)}
	var mu sync.Mutex
	fail := func(row model.GradeRow, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Failures = append(report.Failures, model.GradeImportFailure{
			Row:          row.Row,
			SubmissionID: row.SubmissionID,
			Error:        err.Error(),
		})
	}

	pool := worker.NewWorkerPool(im.workers)
	pool.Start(ctx)

	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		row := row
		if err := im.strategy.ValidateRow(row); err != nil {
			fail(row, err)
			continue
		}
		if first, dup := seen[row.SubmissionID]; dup {
			fail(row, errors.ValidationError{
				Field:   "submission_id",
				Value:   row.SubmissionID,
				Message: fmt.Sprintf("duplicate of row %d", first),
			})
			continue
		}
		seen[row.SubmissionID] = row.Row

		err := pool.Submit(ctx, func(ctx context.Context) error {
			_, err := im.grader.GradeSubmission(ctx, row.SubmissionID, model.GradeRequest{
				Score:    row.Score,
				Feedback: row.Feedback,
			})
			if err != nil {
				fail(row, err)
				return err
			}
			mu.Lock()
			report.Graded++
			mu.Unlock()
			return nil
		})
		if err != nil {
			fail(row, err)
		}
	}
	pool.Stop()

	if err := ctx.Err(); err != nil {
		return report, err
	}

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Row < report.Failures[j].Row
	})

	im.log.Info().
		Dur("duration", time.Since(startTime)).
		Int("total", report.Total).
		Int("graded", report.Graded).
		Int("failed", len(report.Failures)).
		Msg("Grade import completed")

	return report, nil
}
