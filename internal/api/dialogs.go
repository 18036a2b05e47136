package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"aarambh-client/internal/model"
	"aarambh-client/internal/notify"
	"aarambh-client/internal/submission"
	"aarambh-client/internal/upload"
	"aarambh-client/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const eventBuffer = 64

// dialog is one open submission dialog of the browser UI.
type dialog struct {
	id    string
	ctrl  *submission.Controller
	inbox *notify.Recorder

	once sync.Once
	done chan struct{}
}

func (d *dialog) close() {
	d.once.Do(func() {
		d.ctrl.Close()
		close(d.done)
	})
}

func (d *dialog) respond(c *gin.Context, status int, extra gin.H) {
	body := gin.H{
		"id":     d.id,
		"dialog": d.ctrl.View(),
		"toasts": d.inbox.Drain(),
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func (h *Handler) dialog(c *gin.Context) (*dialog, bool) {
	h.mu.Lock()
	d, ok := h.dialogs[c.Param("id")]
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Dialog not found"})
	}
	return d, ok
}

func (h *Handler) assignment(ctx context.Context, id string) (model.Assignment, bool, error) {
	h.mu.Lock()
	a, ok := h.assignments[id]
	h.mu.Unlock()
	if ok {
		return a, true, nil
	}
	if _, err := h.refreshAssignments(ctx); err != nil {
		return model.Assignment{}, false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	a, ok = h.assignments[id]
	return a, ok, nil
}

type openDialogRequest struct {
	AssignmentID string `json:"assignmentId" validate:"required"`
}

func (h *Handler) OpenDialog(c *gin.Context) {
	var req openDialogRequest
	if !h.bind(c, &req) {
		return
	}

	a, ok, err := h.assignment(c.Request.Context(), req.AssignmentID)
	if err != nil {
		writeError(c, err, "Failed to load assignments")
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Assignment not found"})
		return
	}

	inbox := &notify.Recorder{}
	ctrl := submission.NewController(h.cfg.Submission, submission.Deps{
		API:      h.deps.Backend,
		Uploader: h.deps.Uploader,
		Guard:    h.deps.Guard,
		Notifier: notify.Fanout{inbox, notify.NewLog()},
		Refetch: func(ctx context.Context) error {
			_, err := h.refreshAssignments(ctx)
			return err
		},
	})
	if err := ctrl.Open(a); err != nil {
		writeError(c, err, "Assignment no longer accepts submissions")
		return
	}

	d := &dialog{id: uuid.NewString(), ctrl: ctrl, inbox: inbox, done: make(chan struct{})}
	h.mu.Lock()
	h.dialogs[d.id] = d
	h.mu.Unlock()

	h.log.Debug().Str("dialog_id", d.id).Str("assignment_id", a.ID).Msg("Dialog opened")
	d.respond(c, http.StatusCreated, nil)
}

type contentRequest struct {
	Content string `json:"content"`
}

func (h *Handler) SetContent(c *gin.Context) {
	d, ok := h.dialog(c)
	if !ok {
		return
	}
	var req contentRequest
	if !h.bind(c, &req) {
		return
	}
	if err := d.ctrl.SetContent(req.Content); err != nil {
		writeError(c, err, "Failed to update content")
		return
	}
	d.respond(c, http.StatusOK, nil)
}

// AddFiles accepts the browser's selection as multipart field "files". An
// optional "lastModified" value per file, in milliseconds, keeps file
// identity stable across selections.
func (h *Handler) AddFiles(c *gin.Context) {
	d, ok := h.dialog(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form"})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No files provided"})
		return
	}
	modified := form.Value["lastModified"]

	files := make([]upload.File, 0, len(headers))
	for i, fh := range headers {
		modTime := time.UnixMilli(0)
		if i < len(modified) {
			if ms, err := strconv.ParseInt(modified[i], 10, 64); err == nil {
				modTime = time.UnixMilli(ms)
			}
		}
		f, err := h.readFile(fh, modTime)
		if err != nil {
			h.log.Warn().Err(err).Str("file", fh.Filename).Msg("Failed to read selected file")
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Failed to read %s", fh.Filename)})
			return
		}
		files = append(files, f)
	}

	rejected, err := d.ctrl.AddFiles(files...)
	if err != nil {
		writeError(c, err, "Failed to add files")
		return
	}
	d.respond(c, http.StatusOK, gin.H{"rejected": rejected})
}

// readFile copies an uploaded part into memory. Parts above the size limit
// keep their declared size so the controller rejects them without holding
// the content.
func (h *Handler) readFile(fh *multipart.FileHeader, modTime time.Time) (upload.File, error) {
	contentType := fh.Header.Get("Content-Type")
	if fh.Size > h.cfg.Submission.MaxFileSize {
		return upload.File{Name: fh.Filename, Size: fh.Size, ModTime: modTime, ContentType: contentType}, nil
	}

	src, err := fh.Open()
	if err != nil {
		return upload.File{}, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return upload.File{}, err
	}
	return upload.FromBytes(fh.Filename, data, modTime, contentType), nil
}

func (h *Handler) RemoveFile(c *gin.Context) {
	d, ok := h.dialog(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file index"})
		return
	}
	if err := d.ctrl.RemoveFile(index); err != nil {
		writeError(c, err, "Failed to remove file")
		return
	}
	d.respond(c, http.StatusOK, nil)
}

func (h *Handler) Submit(c *gin.Context) {
	d, ok := h.dialog(c)
	if !ok {
		return
	}

	res, err := d.ctrl.Submit(c.Request.Context())
	if err != nil {
		status := statusOf(err)
		body := gin.H{
			"id":     d.id,
			"error":  errors.MessageOf(err, "Failed to submit assignment. Please try again."),
			"kind":   errors.KindOf(err).String(),
			"dialog": d.ctrl.View(),
			"toasts": d.inbox.Drain(),
		}
		c.JSON(status, body)
		return
	}

	h.mu.Lock()
	delete(h.dialogs, d.id)
	h.mu.Unlock()
	toasts := d.inbox.Drain()
	d.close()

	c.JSON(http.StatusOK, gin.H{"id": d.id, "result": res, "toasts": toasts})
}

// Events streams upload progress of a dialog as server-sent events until
// the client goes away or the dialog closes.
func (h *Handler) Events(c *gin.Context) {
	d, ok := h.dialog(c)
	if !ok {
		return
	}

	events, cancel := d.ctrl.Tracker().Subscribe(eventBuffer)
	defer cancel()

	c.SSEvent("snapshot", d.ctrl.View())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("progress", ev)
			return true
		case <-d.done:
			// The final progress and removal events are published before
			// done closes; send them ahead of the close notice.
			flushEvents(c, events)
			c.SSEvent("closed", gin.H{"id": d.id})
			return false
		case <-ctx.Done():
			return false
		}
	})
}

func flushEvents(c *gin.Context, events <-chan upload.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent("progress", ev)
		default:
			return
		}
	}
}

func (h *Handler) CloseDialog(c *gin.Context) {
	d, ok := h.dialog(c)
	if !ok {
		return
	}
	h.mu.Lock()
	delete(h.dialogs, d.id)
	h.mu.Unlock()
	d.close()
	c.Status(http.StatusNoContent)
}
