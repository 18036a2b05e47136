package submission

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"aarambh-client/internal/client"
	"aarambh-client/internal/config"
	"aarambh-client/internal/logger"
	"aarambh-client/internal/model"
	"aarambh-client/internal/notify"
	"aarambh-client/internal/upload"
	"aarambh-client/pkg/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	missingContentTitle = "Missing Content"
	missingContentMsg   = "Please provide assignment content or attach a file"
	submittedTitle      = "Assignment Submitted"
	submittedMsg        = "Your assignment has been submitted successfully"
	failedTitle         = "Failed to Submit"
	failedMsg           = "Failed to submit assignment. Please try again."
	duplicateMsg        = "This assignment is already being submitted"
)

// API is the part of the backend client the controller uses.
type API interface {
	SubmitAssignment(ctx context.Context, req model.SubmitRequest, opts ...client.CallOption) (*model.SubmitResult, error)
	SubmitAssignmentWithFiles(ctx context.Context, assignmentID, content string, files []upload.File,
		onProgress client.FileProgressFunc, onDone client.FileDoneFunc, opts ...client.CallOption) (*model.SubmitResult, error)
}

// Discarder is implemented by uploaders that can remove a stored file
// again. Staged uploads that succeeded are discarded when a sibling fails.
type Discarder interface {
	Discard(ctx context.Context, att model.Attachment) error
}

// RefetchFunc reloads the assignment list after a successful submission.
type RefetchFunc func(ctx context.Context) error

type Deps struct {
	API API
	// Uploader stores files one by one for the staged strategy.
	Uploader upload.Uploader
	Guard    *Guard
	Notifier notify.Notifier
	Refetch  RefetchFunc
}

// Rejection explains why a selected file was not added.
type Rejection struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Controller is the state behind one submission dialog: the assignment,
// the typed content, the selected files and their upload progress.
type Controller struct {
	cfg  config.SubmissionConfig
	deps Deps

	tracker *upload.Tracker

	mu         sync.Mutex
	open       bool
	generation uint64
	assignment model.Assignment
	content    string
	files      []upload.File
	submitting bool
	// key is stable for one opening of the dialog.
	key string

	log zerolog.Logger
}

func NewController(cfg config.SubmissionConfig, deps Deps) *Controller {
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLog()
	}
	c := &Controller{
		cfg:     cfg,
		deps:    deps,
		tracker: upload.NewTracker(),
		log:     logger.For("submission"),
	}
	if cfg.Strategy == config.StrategyStaged && deps.Uploader == nil {
		c.log.Warn().Msg("Staged strategy without an uploader, falling back to combined")
		c.cfg.Strategy = config.StrategyCombined
	}
	return c
}

// Tracker exposes per-file progress for subscribers.
func (c *Controller) Tracker() *upload.Tracker {
	return c.tracker
}

// Open starts a dialog for a. Assignments that already have a submission
// cannot be opened.
func (c *Controller) Open(a model.Assignment) error {
	if !a.CanSubmit() {
		return fmt.Errorf("%w: %s is %s", errors.ErrSubmissionClosed, a.ID, a.Status())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked()
	c.open = true
	c.assignment = a
	c.key = uuid.NewString()

	c.log.Debug().Str("assignment_id", a.ID).Msg("Submission dialog opened")
	return nil
}

// Close discards the dialog's state. Requests still in flight are not
// cancelled; their results are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked()
}

func (c *Controller) resetLocked() {
	c.generation++
	c.open = false
	c.assignment = model.Assignment{}
	c.content = ""
	c.files = nil
	c.submitting = false
	c.key = ""
	c.tracker.Reset()
}

func (c *Controller) SetContent(content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return errors.ErrDialogClosed
	}
	c.content = content
	return nil
}

// AddFiles selects files for upload. Files that are not PDFs, too large,
// already selected or over the count limit are rejected and reported.
func (c *Controller) AddFiles(files ...upload.File) ([]Rejection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return nil, errors.ErrDialogClosed
	}

	var rejected []Rejection
	for _, f := range files {
		if reason := c.rejectLocked(f); reason != "" {
			rejected = append(rejected, Rejection{Name: f.Name, Reason: reason})
			continue
		}
		c.files = append(c.files, f)
		c.tracker.Begin(f)
	}

	if len(rejected) > 0 {
		reasons := make([]string, 0, len(rejected))
		for _, r := range rejected {
			reasons = append(reasons, r.Name+": "+r.Reason)
		}
		c.deps.Notifier.Notify(notify.Warning("Some files were not added", strings.Join(reasons, "; ")))
	}
	return rejected, nil
}

func (c *Controller) rejectLocked(f upload.File) string {
	switch {
	case !f.IsPDF():
		return "only PDF files are accepted"
	case f.Size > c.cfg.MaxFileSize:
		return fmt.Sprintf("file is larger than %d MB", c.cfg.MaxFileSize>>20)
	case len(c.files) >= c.cfg.MaxFiles:
		return fmt.Sprintf("at most %d files can be attached", c.cfg.MaxFiles)
	}
	for _, existing := range c.files {
		if existing.Identity() == f.Identity() {
			return "file is already selected"
		}
	}
	return ""
}

// RemoveFile drops the file at index from the selection.
func (c *Controller) RemoveFile(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return errors.ErrDialogClosed
	}
	if index < 0 || index >= len(c.files) {
		return errors.ValidationError{Field: "index", Value: index, Message: "no file at that position"}
	}
	removed := c.files[index]
	c.files = append(c.files[:index:index], c.files[index+1:]...)
	c.tracker.Remove(removed.Identity())
	return nil
}

// FileView is one selected file with its upload state.
type FileView struct {
	Index    int                 `json:"index"`
	Identity upload.FileIdentity `json:"identity"`
	Name     string              `json:"name"`
	Size     int64               `json:"size"`
	State    upload.State        `json:"state"`
}

type View struct {
	Open         bool       `json:"open"`
	AssignmentID string     `json:"assignmentId,omitempty"`
	Title        string     `json:"title,omitempty"`
	Content      string     `json:"content"`
	Files        []FileView `json:"files"`
	Submitting   bool       `json:"submitting"`
}

// View is a copy of the dialog's state for rendering.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Open:         c.open,
		AssignmentID: c.assignment.ID,
		Title:        c.assignment.Title,
		Content:      c.content,
		Submitting:   c.submitting,
		Files:        make([]FileView, 0, len(c.files)),
	}
	states := c.tracker.Snapshot()
	for i, f := range c.files {
		st := states[f.Identity()]
		v.Files = append(v.Files, FileView{Index: i, Identity: f.Identity(), Name: f.Name, Size: f.Size, State: st})
	}
	return v
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open && c.generation == gen
}

// Submit sends the dialog's content and files once. A call while another is
// in flight fails with ErrSubmitInFlight; an empty form fails locally with a
// validation error and no request.
func (c *Controller) Submit(ctx context.Context) (*model.SubmitResult, error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil, errors.ErrDialogClosed
	}
	if c.submitting {
		c.mu.Unlock()
		return nil, errors.ErrSubmitInFlight
	}
	if strings.TrimSpace(c.content) == "" && len(c.files) == 0 {
		c.mu.Unlock()
		c.deps.Notifier.Notify(notify.Warning(missingContentTitle, missingContentMsg))
		return nil, errors.ValidationError{Field: "content", Message: missingContentMsg}
	}

	c.submitting = true
	gen := c.generation
	assignmentID := c.assignment.ID
	content := c.content
	files := append([]upload.File(nil), c.files...)
	key := c.key
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.generation == gen {
			c.submitting = false
		}
		c.mu.Unlock()
	}()

	log := c.log.With().Str("assignment_id", assignmentID).Int("files", len(files)).Logger()

	if c.deps.Guard != nil {
		ok, err := c.deps.Guard.Acquire(ctx, assignmentID, key)
		if err != nil {
			log.Warn().Err(err).Msg("Submission guard unavailable, continuing without it")
		} else if !ok {
			log.Warn().Msg("Duplicate submission rejected")
			c.deps.Notifier.Notify(notify.Error(failedTitle, duplicateMsg))
			return nil, fmt.Errorf("%w: %s", errors.ErrDuplicateSubmit, assignmentID)
		}
	}

	var (
		res *model.SubmitResult
		err error
	)
	switch {
	case len(files) == 0:
		res, err = c.deps.API.SubmitAssignment(ctx, model.SubmitRequest{AssignmentID: assignmentID, Content: content},
			client.WithIdempotencyKey(key))
	case c.cfg.Strategy == config.StrategyStaged:
		res, err = c.submitStaged(ctx, gen, assignmentID, content, files, key)
	default:
		res, err = c.submitCombined(ctx, gen, assignmentID, content, files, key)
	}

	if err != nil {
		if c.deps.Guard != nil {
			if rerr := c.deps.Guard.Release(context.Background(), assignmentID, key); rerr != nil {
				log.Warn().Err(rerr).Msg("Failed to release submission guard")
			}
		}
		log.Error().Err(err).Str("kind", errors.KindOf(err).String()).Msg("Submission failed")
		if c.current(gen) {
			c.deps.Notifier.Notify(notify.Error(failedTitle, errors.MessageOf(err, failedMsg)))
		}
		return nil, err
	}

	log.Info().Msg("Assignment submitted")
	c.deps.Notifier.Notify(notify.Success(submittedTitle, submittedMsg))

	c.mu.Lock()
	if c.generation == gen {
		c.resetLocked()
	}
	c.mu.Unlock()

	if c.deps.Refetch != nil {
		if err := c.deps.Refetch(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to refresh assignments")
		}
	}
	return res, nil
}

// submitCombined sends everything in one multipart request. Files become
// uploaded only when that request succeeds.
func (c *Controller) submitCombined(ctx context.Context, gen uint64, assignmentID, content string, files []upload.File, key string) (*model.SubmitResult, error) {
	for _, f := range files {
		c.tracker.Begin(f)
	}

	res, err := c.deps.API.SubmitAssignmentWithFiles(ctx, assignmentID, content, files,
		func(f upload.File, loaded, total int64) {
			if c.current(gen) {
				c.tracker.OnProgress(f.Identity(), loaded, total)
			}
		},
		func(f upload.File) {
			if c.current(gen) {
				c.tracker.OnComplete(f.Identity(), nil)
			}
		},
		client.WithIdempotencyKey(key),
	)
	if err != nil && c.current(gen) {
		for _, f := range files {
			c.tracker.OnComplete(f.Identity(), err)
		}
	}
	return res, err
}

// submitStaged uploads every file concurrently, then creates the
// submission with references to the stored files. Nothing is submitted
// unless every upload succeeded.
func (c *Controller) submitStaged(ctx context.Context, gen uint64, assignmentID, content string, files []upload.File, key string) (*model.SubmitResult, error) {
	attachments := make([]model.Attachment, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, f := range files {
		i, f := i, f
		id := c.tracker.Begin(f)
		g.Go(func() error {
			att, err := c.deps.Uploader.Upload(gctx, f, func(loaded, total int64) {
				if c.current(gen) {
					c.tracker.OnProgress(id, loaded, total)
				}
			})
			if c.current(gen) {
				c.tracker.OnComplete(id, err)
			}
			if err != nil {
				return err
			}
			attachments[i] = att
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.discard(attachments)
		return nil, err
	}

	return c.deps.API.SubmitAssignment(ctx, model.SubmitRequest{
		AssignmentID: assignmentID,
		Content:      content,
		Attachments:  attachments,
	}, client.WithIdempotencyKey(key))
}

func (c *Controller) discard(attachments []model.Attachment) {
	d, ok := c.deps.Uploader.(Discarder)
	if !ok {
		return
	}
	// The request context may already be cancelled by the failed sibling.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, att := range attachments {
		if att.URL == "" {
			continue
		}
		if err := d.Discard(ctx, att); err != nil {
			c.log.Warn().Err(err).Str("file", att.Name).Msg("Failed to discard staged upload")
		}
	}
}
