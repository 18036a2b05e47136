package codelab

import (
	"context"
	"strings"
	"sync"
	"time"

	"aarambh-client/internal/config"
	"aarambh-client/internal/logger"
	"aarambh-client/internal/model"
	"aarambh-client/pkg/errors"

	"github.com/rs/zerolog"
)

const (
	msgSSL         = "The code execution service is temporarily unavailable due to SSL connection issues. Our team is working to resolve this. Please try again in a few minutes."
	msgTimeout     = "Code execution timed out. Please try with a simpler program."
	msgQuota       = "The code execution service has reached its usage limit. Please try again later."
	msgUnavailable = "The code execution service is temporarily unavailable. Please try again in a few minutes."
	msgFallback    = "Failed to execute code"
	msgConnection  = "Failed to execute code. Please check your internet connection and try again."
)

var ErrExecuting = errors.New("code is already executing")

// Executor is the backend call the runner wraps.
type Executor interface {
	ExecuteCode(ctx context.Context, req model.ExecuteRequest) (*model.ExecuteResult, error)
}

// ExecutionError carries the message shown to the user next to the kind of
// the underlying failure.
type ExecutionError struct {
	Kind     errors.Kind
	Message  string
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string { return e.Message }

func (e *ExecutionError) Unwrap() error { return e.Err }

// Runner executes scripts one at a time, retrying only the failures its
// retry table allows.
type Runner struct {
	exec  Executor
	retry errors.RetryTable
	sleep func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	executing bool

	log zerolog.Logger
}

// RetryTable retries transient failures cfg.MaxRetries more times with a
// fixed delay. Every other kind fails on the first attempt.
func RetryTable(cfg config.CodeLabConfig) errors.RetryTable {
	return errors.RetryTable{
		errors.KindTransient: {
			Retry:       cfg.MaxRetries > 0,
			MaxAttempts: cfg.MaxRetries + 1,
			Backoff:     cfg.RetryDelay,
		},
	}
}

func NewRunner(exec Executor, cfg config.CodeLabConfig) *Runner {
	return &Runner{
		exec:  exec,
		retry: RetryTable(cfg),
		sleep: sleepCtx,
		log:   logger.For("codelab"),
	}
}

func (r *Runner) Executing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executing
}

// Execute runs req. A second call while one is in flight fails with
// ErrExecuting. An error reported by the program itself comes back as an
// ExecutionError with the program's message.
func (r *Runner) Execute(ctx context.Context, req model.ExecuteRequest) (*model.ExecuteResult, error) {
	r.mu.Lock()
	if r.executing {
		r.mu.Unlock()
		return nil, ErrExecuting
	}
	r.executing = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.executing = false
		r.mu.Unlock()
	}()

	log := r.log.With().Str("language", req.Language).Logger()

	for attempt := 1; ; attempt++ {
		res, err := r.exec.ExecuteCode(ctx, req)
		if err == nil {
			if res.Error != "" {
				return nil, &ExecutionError{Kind: errors.KindGeneric, Message: res.Error, Attempts: attempt}
			}
			return res, nil
		}

		kind := errors.KindOf(err)
		policy := r.retry.Lookup(kind)
		if attempt < policy.MaxAttempts {
			log.Warn().
				Err(err).
				Int("attempt", attempt).
				Str("kind", kind.String()).
				Dur("backoff", policy.Backoff).
				Msg("Code execution failed, retrying")
			if serr := r.sleep(ctx, policy.Backoff); serr != nil {
				return nil, serr
			}
			continue
		}

		log.Error().Err(err).Int("attempt", attempt).Str("kind", kind.String()).Msg("Code execution failed")
		return nil, &ExecutionError{Kind: kind, Message: UserMessage(err), Attempts: attempt, Err: err}
	}
}

// UserMessage picks the text shown for a failed execution.
func UserMessage(err error) string {
	kind := errors.KindOf(err)
	msg := errors.MessageOf(err, "")

	switch {
	case strings.Contains(msg, "SSL connection issues"):
		return msgSSL
	case kind == errors.KindTimeout:
		return msgTimeout
	case strings.Contains(msg, "quota exceeded"):
		return msgQuota
	case kind == errors.KindTransient:
		return msgUnavailable
	case kind == errors.KindNetwork:
		return msgConnection
	case strings.Contains(msg, "JDoodle"):
		return "Code execution service error: " + msg
	case msg != "":
		return msg
	default:
		return msgFallback
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
