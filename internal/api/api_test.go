package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"aarambh-client/internal/client"
	"aarambh-client/internal/codelab"
	"aarambh-client/internal/config"
	"aarambh-client/internal/grading"
	"aarambh-client/internal/model"
	"aarambh-client/internal/notify"
	"aarambh-client/internal/upload"
	"aarambh-client/internal/worker"
	"aarambh-client/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu          sync.Mutex
	assignments []model.Assignment
	submits     []model.SubmitRequest
	fileSubmits [][]string
	grades      map[string]model.GradeRequest
	unread      int
	loggedOut   bool
	execResult  *model.ExecuteResult
	// hold, when set, parks AI and code calls until closed; entered
	// signals each parked call.
	hold    chan struct{}
	entered chan struct{}
}

func (f *fakeBackend) wait() {
	if f.hold != nil {
		f.entered <- struct{}{}
		<-f.hold
	}
}

func (f *fakeBackend) SubmitAssignment(ctx context.Context, req model.SubmitRequest, opts ...client.CallOption) (*model.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, req)
	return &model.SubmitResult{Message: "Assignment submitted successfully"}, nil
}

func (f *fakeBackend) SubmitAssignmentWithFiles(ctx context.Context, assignmentID, content string, files []upload.File,
	onProgress client.FileProgressFunc, onDone client.FileDoneFunc, opts ...client.CallOption) (*model.SubmitResult, error) {
	names := make([]string, 0, len(files))
	for _, file := range files {
		onProgress(file, file.Size, file.Size)
		onDone(file)
		names = append(names, file.Name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileSubmits = append(f.fileSubmits, names)
	return &model.SubmitResult{Message: "Assignment submitted successfully"}, nil
}

func (f *fakeBackend) StudentAssignments(ctx context.Context) ([]model.Assignment, error) {
	return f.assignments, nil
}

func (f *fakeBackend) UnreadNotificationCount(ctx context.Context) (int, error) {
	return f.unread, nil
}

func (f *fakeBackend) Logout(ctx context.Context) error {
	f.loggedOut = true
	return nil
}

func (f *fakeBackend) AIGradeSubmission(ctx context.Context, submissionID, prompt string) (*model.AISuggestion, error) {
	f.wait()
	return &model.AISuggestion{Score: 82, Feedback: "Clear argument"}, nil
}

func (f *fakeBackend) GradeSubmission(ctx context.Context, submissionID string, req model.GradeRequest) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grades[submissionID] = req
	score := req.Score
	return &model.Submission{ID: submissionID, Status: model.SubmissionStatusGraded, Score: &score}, nil
}

func (f *fakeBackend) ExecuteCode(ctx context.Context, req model.ExecuteRequest) (*model.ExecuteResult, error) {
	f.wait()
	return f.execResult, nil
}

func setupRouter(t *testing.T) (*gin.Engine, *fakeBackend, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := &fakeBackend{
		assignments: []model.Assignment{
			{ID: "a1", Title: "Essay"},
			{ID: "a2", Title: "Lab report", Submission: &model.Submission{ID: "s2", Status: model.SubmissionStatusSubmitted}},
		},
		grades:     map[string]model.GradeRequest{},
		execResult: &model.ExecuteResult{Output: "hello\n"},
	}

	cfg := config.Default()
	cfg.CodeLab.MaxRetries = 0
	inbox := &notify.Recorder{}
	h := NewHandler(cfg, Deps{
		Backend:   backend,
		Assistant: grading.NewAssistant(backend, inbox),
		Runner:    codelab.NewRunner(backend, cfg.CodeLab),
		Poller:    worker.NewNotificationPoller(cfg.Notifications, backend, inbox),
		Inbox:     inbox,
	})

	router := gin.New()
	SetupRoutes(router, h)
	return router, backend, h
}

func doJSON(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type dialogResponse struct {
	ID     string `json:"id"`
	Error  string `json:"error"`
	Dialog struct {
		AssignmentID string `json:"assignmentId"`
		Content      string `json:"content"`
		Files        []struct {
			Name string `json:"name"`
		} `json:"files"`
	} `json:"dialog"`
	Rejected []struct {
		Name   string `json:"name"`
		Reason string `json:"reason"`
	} `json:"rejected"`
	Toasts []notify.Toast `json:"toasts"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dialogResponse {
	t.Helper()
	var out dialogResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func openDialog(t *testing.T, router http.Handler, assignmentID string) string {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/api/v1/dialogs", gin.H{"assignmentId": assignmentID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := decode(t, w)
	assert.Equal(t, assignmentID, out.Dialog.AssignmentID)
	return out.ID
}

func TestHealthCheck(t *testing.T) {
	router, _, _ := setupRouter(t)
	w := doJSON(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestListAssignments(t *testing.T) {
	router, _, _ := setupRouter(t)
	w := doJSON(router, http.MethodGet, "/api/v1/assignments", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Assignments []struct {
			ID        string `json:"id"`
			Status    string `json:"status"`
			CanSubmit bool   `json:"canSubmit"`
		} `json:"assignments"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Assignments, 2)
	assert.Equal(t, "pending", out.Assignments[0].Status)
	assert.True(t, out.Assignments[0].CanSubmit)
	assert.Equal(t, "submitted", out.Assignments[1].Status)
	assert.False(t, out.Assignments[1].CanSubmit)
}

func TestDialog_textSubmission(t *testing.T) {
	router, backend, _ := setupRouter(t)
	id := openDialog(t, router, "a1")

	w := doJSON(router, http.MethodPut, "/api/v1/dialogs/"+id+"/content", gin.H{"content": "My essay"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "My essay", decode(t, w).Dialog.Content)

	w = doJSON(router, http.MethodPost, "/api/v1/dialogs/"+id+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	require.NotEmpty(t, out.Toasts)
	assert.Equal(t, "Assignment Submitted", out.Toasts[len(out.Toasts)-1].Title)

	require.Len(t, backend.submits, 1)
	assert.Equal(t, model.SubmitRequest{AssignmentID: "a1", Content: "My essay"}, backend.submits[0])

	w = doJSON(router, http.MethodPut, "/api/v1/dialogs/"+id+"/content", gin.H{"content": "again"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDialog_emptySubmitIsRejectedLocally(t *testing.T) {
	router, backend, _ := setupRouter(t)
	id := openDialog(t, router, "a1")

	w := doJSON(router, http.MethodPost, "/api/v1/dialogs/"+id+"/submit", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	out := decode(t, w)
	require.Len(t, out.Toasts, 1)
	assert.Equal(t, "Missing Content", out.Toasts[0].Title)
	assert.Empty(t, backend.submits)
}

func TestDialog_submittedAssignmentCannotOpen(t *testing.T) {
	router, _, _ := setupRouter(t)
	w := doJSON(router, http.MethodPost, "/api/v1/dialogs", gin.H{"assignmentId": "a2"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/dialogs", gin.H{"assignmentId": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/dialogs", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func multipartFiles(t *testing.T, files map[string][]byte, order ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(files[name])
		require.NoError(t, err)
	}
	for range order {
		require.NoError(t, mw.WriteField("lastModified", "1709285400000"))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestDialog_filesAndCombinedSubmit(t *testing.T) {
	router, backend, _ := setupRouter(t)
	id := openDialog(t, router, "a1")

	body, contentType := multipartFiles(t, map[string][]byte{
		"report.pdf": []byte("%PDF-1.4\nreport"),
		"notes.txt":  []byte("plain notes"),
	}, "report.pdf", "notes.txt")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dialogs/"+id+"/files", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode(t, w)
	require.Len(t, out.Dialog.Files, 1)
	assert.Equal(t, "report.pdf", out.Dialog.Files[0].Name)
	require.Len(t, out.Rejected, 1)
	assert.Equal(t, "notes.txt", out.Rejected[0].Name)

	w = doJSON(router, http.MethodPost, "/api/v1/dialogs/"+id+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, [][]string{{"report.pdf"}}, backend.fileSubmits)
}

func TestDialog_removeFileAndClose(t *testing.T) {
	router, _, _ := setupRouter(t)
	id := openDialog(t, router, "a1")

	w := doJSON(router, http.MethodDelete, "/api/v1/dialogs/"+id+"/files/0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/v1/dialogs/"+id+"/files/x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodDelete, "/api/v1/dialogs/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/dialogs/"+id+"/submit", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGrading(t *testing.T) {
	router, backend, _ := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/submissions/s1/ai-assist", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Clear argument")
	assert.Empty(t, backend.grades)

	w = doJSON(router, http.MethodPost, "/api/v1/submissions/s1/grade", gin.H{"feedback": "no score"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/submissions/s1/grade", gin.H{"score": 75, "feedback": "Solid"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.GradeRequest{Score: 75, Feedback: "Solid"}, backend.grades["s1"])
	assert.Contains(t, w.Body.String(), "Grade Submitted")
}

func TestAIAssistStatus(t *testing.T) {
	router, backend, _ := setupRouter(t)
	backend.hold = make(chan struct{})
	backend.entered = make(chan struct{}, 1)

	done := make(chan int, 1)
	go func() {
		done <- doJSON(router, http.MethodPost, "/api/v1/submissions/s1/ai-assist", nil).Code
	}()
	<-backend.entered

	w := doJSON(router, http.MethodGet, "/api/v1/submissions/s1/ai-assist", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"loading":true}`, w.Body.String())

	close(backend.hold)
	require.Equal(t, http.StatusOK, <-done)

	w = doJSON(router, http.MethodGet, "/api/v1/submissions/s1/ai-assist", nil)
	var out struct {
		Loading    bool                `json:"loading"`
		Suggestion *model.AISuggestion `json:"suggestion"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.False(t, out.Loading)
	require.NotNil(t, out.Suggestion)
	assert.Equal(t, 82.0, out.Suggestion.Score)
}

func TestCodeLabStatus(t *testing.T) {
	router, backend, _ := setupRouter(t)
	backend.hold = make(chan struct{})
	backend.entered = make(chan struct{}, 1)
	req := gin.H{"script": "print('hello')", "language": "python3", "versionIndex": "4"}

	done := make(chan int, 1)
	go func() {
		done <- doJSON(router, http.MethodPost, "/api/v1/code-lab/execute", req).Code
	}()
	<-backend.entered

	w := doJSON(router, http.MethodGet, "/api/v1/code-lab/status", nil)
	assert.JSONEq(t, `{"executing":true}`, w.Body.String())

	w = doJSON(router, http.MethodPost, "/api/v1/code-lab/execute", req)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(backend.hold)
	require.Equal(t, http.StatusOK, <-done)

	w = doJSON(router, http.MethodGet, "/api/v1/code-lab/status", nil)
	assert.JSONEq(t, `{"executing":false}`, w.Body.String())
}

func TestExecuteCode(t *testing.T) {
	router, backend, _ := setupRouter(t)
	req := gin.H{"script": "print('hello')", "language": "python3", "versionIndex": "4"}

	w := doJSON(router, http.MethodPost, "/api/v1/code-lab/execute", req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `hello\n`)

	backend.execResult = &model.ExecuteResult{Error: "SyntaxError: invalid syntax"}
	w = doJSON(router, http.MethodPost, "/api/v1/code-lab/execute", req)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "SyntaxError")

	w = doJSON(router, http.MethodPost, "/api/v1/code-lab/execute", gin.H{"language": "python3"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnreadCount(t *testing.T) {
	router, backend, _ := setupRouter(t)
	backend.unread = 3

	w := doJSON(router, http.MethodGet, "/api/v1/notifications/unread-count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 3, out.Count)
}

func TestLogoutClosesDialogs(t *testing.T) {
	router, backend, h := setupRouter(t)
	id := openDialog(t, router, "a1")

	w := doJSON(router, http.MethodPost, "/api/v1/session/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, backend.loggedOut)
	assert.Empty(t, h.dialogs)

	w = doJSON(router, http.MethodPut, "/api/v1/dialogs/"+id+"/content", gin.H{"content": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.ErrSubmitInFlight, http.StatusConflict},
		{errors.ErrDuplicateSubmit, http.StatusConflict},
		{errors.ErrDialogClosed, http.StatusGone},
		{errors.ValidationError{Field: "content", Message: "empty"}, http.StatusBadRequest},
		{errors.NewAPIError(429, errors.RateLimitMessage), http.StatusTooManyRequests},
		{errors.NewAPIError(500, "boom"), http.StatusBadGateway},
		{codelab.ErrExecuting, http.StatusConflict},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func TestDialog_eventsEndWithUploadedState(t *testing.T) {
	router, _, _ := setupRouter(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	for run := 0; run < 5; run++ {
		id := openDialog(t, router, "a1")

		body, contentType := multipartFiles(t, map[string][]byte{"report.pdf": []byte("%PDF-1.4\nreport")}, "report.pdf")
		resp, err := http.Post(srv.URL+"/api/v1/dialogs/"+id+"/files", contentType, body)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		stream, err := http.Get(srv.URL + "/api/v1/dialogs/" + id + "/events")
		require.NoError(t, err)
		reader := bufio.NewReader(stream.Body)
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		require.Equal(t, "event:snapshot\n", line)

		resp, err = http.Post(srv.URL+"/api/v1/dialogs/"+id+"/submit", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		rest, err := io.ReadAll(reader)
		stream.Body.Close()
		require.NoError(t, err)

		events := string(rest)
		uploaded := strings.Index(events, `"progress":100,"uploaded":true`)
		closed := strings.Index(events, "event:closed")
		require.GreaterOrEqual(t, uploaded, 0, events)
		require.GreaterOrEqual(t, closed, 0, events)
		assert.Less(t, uploaded, closed, events)
		assert.Contains(t, events, `"removed":true`)
	}
}

func TestCORSMiddleware(t *testing.T) {
	_, backend, h := setupRouter(t)
	router := gin.New()
	router.Use(CORSMiddleware([]string{"http://localhost:5174"}))
	SetupRoutes(router, h)

	send := func(method, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/v1/session/logout", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := send(http.MethodPost, "https://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, backend.loggedOut)

	w = send(http.MethodOptions, "https://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = send(http.MethodOptions, "http://localhost:5174")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5174", w.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, backend.loggedOut)

	w = send(http.MethodPost, "http://localhost:5174")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:5174", w.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, backend.loggedOut)

	backend.loggedOut = false
	w = send(http.MethodPost, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, backend.loggedOut)
}
