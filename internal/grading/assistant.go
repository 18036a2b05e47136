package grading

import (
	"context"
	"sync"

	"aarambh-client/internal/logger"
	"aarambh-client/internal/model"
	"aarambh-client/internal/notify"
	"aarambh-client/pkg/errors"

	"github.com/rs/zerolog"
)

const (
	aiDoneTitle      = "AI Analysis Complete"
	aiDoneMsg        = "AI grading assistance is ready"
	aiFailedTitle    = "AI Analysis Failed"
	aiFailedMsg      = "Failed to get AI grading assistance"
	gradedTitle      = "Grade Submitted"
	gradedMsg        = "The submission has been graded successfully"
	gradeFailedTitle = "Grading Failed"
	gradeFailedMsg   = "Failed to grade submission"
)

type API interface {
	AIGradeSubmission(ctx context.Context, submissionID, prompt string) (*model.AISuggestion, error)
	GradeSubmission(ctx context.Context, submissionID string, req model.GradeRequest) (*model.Submission, error)
}

// Assistant holds AI suggestions for the submissions a teacher is looking
// at. Suggestions live only as long as the Assistant and are never applied
// to a score; Grade is the only way a score is written.
type Assistant struct {
	api      API
	notifier notify.Notifier

	mu      sync.Mutex
	results map[string]model.AISuggestion
	// seq orders overlapping requests for one submission; only the latest
	// may store its result.
	seq     map[string]uint64
	loading map[string]int

	log zerolog.Logger
}

func NewAssistant(api API, notifier notify.Notifier) *Assistant {
	if notifier == nil {
		notifier = notify.NewLog()
	}
	return &Assistant{
		api:      api,
		notifier: notifier,
		results:  make(map[string]model.AISuggestion),
		seq:      make(map[string]uint64),
		loading:  make(map[string]int),
		log:      logger.For("grading"),
	}
}

// Request asks for a fresh suggestion. Any suggestion already shown for the
// submission is dropped first, so a failure leaves nothing stale behind.
func (a *Assistant) Request(ctx context.Context, submissionID, prompt string) (*model.AISuggestion, error) {
	a.mu.Lock()
	delete(a.results, submissionID)
	a.seq[submissionID]++
	seq := a.seq[submissionID]
	a.loading[submissionID]++
	a.mu.Unlock()

	log := a.log.With().Str("submission_id", submissionID).Logger()
	log.Debug().Msg("Requesting AI grading assistance")

	res, err := a.api.AIGradeSubmission(ctx, submissionID, prompt)

	a.mu.Lock()
	a.loading[submissionID]--
	if a.loading[submissionID] <= 0 {
		delete(a.loading, submissionID)
	}
	latest := a.seq[submissionID] == seq
	if err == nil && latest {
		a.results[submissionID] = *res
	}
	a.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Str("kind", errors.KindOf(err).String()).Msg("AI grading failed")
		a.notifier.Notify(notify.Error(aiFailedTitle, errors.MessageOf(err, aiFailedMsg)))
		return nil, err
	}

	log.Info().Float64("score", res.Score).Bool("pdf_processed", res.PDFProcessed).Msg("AI grading ready")
	a.notifier.Notify(notify.Success(aiDoneTitle, aiDoneMsg))
	out := *res
	return &out, nil
}

// Result is the suggestion currently shown for submissionID.
func (a *Assistant) Result(submissionID string) (model.AISuggestion, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, ok := a.results[submissionID]
	return res, ok
}

func (a *Assistant) Loading(submissionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loading[submissionID] > 0
}

// Discard forgets the suggestion for one submission, as when its modal
// closes.
func (a *Assistant) Discard(submissionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.results, submissionID)
}

func (a *Assistant) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results = make(map[string]model.AISuggestion)
}

// Grade commits the teacher's score and feedback.
func (a *Assistant) Grade(ctx context.Context, submissionID string, score float64, feedback string) (*model.Submission, error) {
	sub, err := a.api.GradeSubmission(ctx, submissionID, model.GradeRequest{Score: score, Feedback: feedback})
	if err != nil {
		a.log.Warn().Err(err).Str("submission_id", submissionID).Msg("Grading failed")
		a.notifier.Notify(notify.Error(gradeFailedTitle, errors.MessageOf(err, gradeFailedMsg)))
		return nil, err
	}

	a.log.Info().Str("submission_id", submissionID).Float64("score", score).Msg("Submission graded")
	a.notifier.Notify(notify.Success(gradedTitle, gradedMsg))
	return sub, nil
}
