package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aarambh-client/internal/config"
	"aarambh-client/internal/model"
	"aarambh-client/internal/session"
	"aarambh-client/internal/upload"
	"aarambh-client/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler, mutate ...func(*config.Config)) (*Client, *session.Session) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Backend.BaseURL = srv.URL
	for _, m := range mutate {
		m(cfg)
	}

	sess := session.New(session.NewMemoryStore(), "session")
	require.NoError(t, sess.Set(context.Background(), "student-token", model.User{ID: "u1", Role: model.RoleStudent}))
	return New(cfg, sess), sess
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func testPDF(name string) upload.File {
	data := append([]byte("%PDF-1.4\n"), make([]byte, 64<<10)...)
	return upload.FromBytes(name, data, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "application/pdf")
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind errors.Kind
		wantMsg  string
	}{
		{name: "empty", status: 502, body: "", wantKind: errors.KindTransient, wantMsg: "Empty response from server (502)"},
		{name: "plain rate limit", status: 429, body: "Too many requests, slow down", wantKind: errors.KindRateLimit, wantMsg: errors.RateLimitMessage},
		{name: "message wins", status: 400, body: `{"success":false,"message":"Content required","error":"x"}`, wantKind: errors.KindGeneric, wantMsg: "Content required"},
		{name: "error field", status: 500, body: `{"success":false,"error":"boom"}`, wantKind: errors.KindGeneric, wantMsg: "boom"},
		{name: "status line", status: 404, body: `{}`, wantKind: errors.KindGeneric, wantMsg: "API request failed with status 404"},
		{name: "invalid token", status: 401, body: `{"success":false,"message":"Invalid token"}`, wantKind: errors.KindUnauthorized, wantMsg: "Invalid token"},
		{name: "success false on 200", status: 200, body: `{"success":false,"message":"model unavailable"}`, wantKind: errors.KindGeneric, wantMsg: "model unavailable"},
		{name: "ssl", status: 500, body: `{"success":false,"message":"SSL connection issues with provider"}`, wantKind: errors.KindTransient, wantMsg: "SSL connection issues with provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := decodeEnvelope(tt.status, []byte(tt.body))
			require.Error(t, err)
			assert.Nil(t, env)
			assert.Equal(t, tt.wantKind, errors.KindOf(err))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}

	env, err := decodeEnvelope(200, []byte(`{"success":true,"message":"ok","data":{"unreadCount":3}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"unreadCount":3}`, string(env.Data))
}

func TestUploadFile_rateLimited(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/upload", r.URL.Path)
		io.Copy(io.Discard, r.Body)
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"message": "Too many requests from this IP, please try again later.",
		})
	}))

	tr := upload.NewTracker()
	f := testPDF("report.pdf")
	id := tr.Begin(f)

	_, err := c.UploadFile(context.Background(), f, func(loaded, total int64) { tr.OnProgress(id, loaded, total) })
	require.Error(t, err)
	assert.Equal(t, errors.KindRateLimit, errors.KindOf(err))
	tr.OnComplete(id, err)

	st := tr.Snapshot()[id]
	assert.Equal(t, "Too many requests from this IP, please try again later.", st.Error)
	assert.False(t, st.Uploaded)
}

func TestUploadFile(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantURL string
		wantMsg string
	}{
		{name: "ok", status: 200, body: `{"url":"/uploads/report.pdf"}`, wantURL: "/uploads/report.pdf"},
		{name: "ok in envelope", status: 201, body: `{"success":true,"data":{"url":"/uploads/r.pdf"}}`, wantURL: "/uploads/r.pdf"},
		{name: "server message", status: 413, body: `{"message":"File too large"}`, wantMsg: "File too large"},
		{name: "unparseable", status: 500, body: `<html>oops</html>`, wantMsg: errors.UploadFailed},
		{name: "plain 429", status: 429, body: `Too many requests`, wantMsg: errors.RateLimitMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer student-token", r.Header.Get("Authorization"))
				file, hdr, err := r.FormFile("file")
				if assert.NoError(t, err) {
					file.Close()
					assert.Equal(t, "report.pdf", hdr.Filename)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))

			var last int64
			att, err := c.UploadFile(context.Background(), testPDF("report.pdf"), func(loaded, total int64) { last = loaded })
			if tt.wantMsg != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantMsg, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, att.URL)
			assert.Equal(t, "application/pdf", att.Type)
			assert.Equal(t, att.Size, last)
		})
	}
}

func TestUploadFile_networkError(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())
	c.baseURL = "http://127.0.0.1:1/api"

	_, err := c.UploadFile(context.Background(), testPDF("report.pdf"), nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindNetwork, errors.KindOf(err))
	assert.Equal(t, errors.NetworkFailure, err.Error())
}

func TestSubmitAssignmentWithFiles(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/assignments/submit", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "a1", r.FormValue("assignmentId"))
		assert.Equal(t, "", r.FormValue("content"))
		files := r.MultipartForm.File["attachments"]
		require.Len(t, files, 2)
		assert.Equal(t, "application/pdf", files[0].Header.Get("Content-Type"))
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"message": "Assignment submitted successfully",
			"data":    map[string]interface{}{"submission": map[string]interface{}{"_id": "s1", "status": "submitted"}},
		})
	}))

	var mu sync.Mutex
	progress := map[string]int64{}
	var done []string
	files := []upload.File{testPDF("a.pdf"), testPDF("b.pdf")}

	res, err := c.SubmitAssignmentWithFiles(context.Background(), "a1", "", files,
		func(f upload.File, loaded, total int64) {
			mu.Lock()
			progress[f.Name] = loaded
			mu.Unlock()
		},
		func(f upload.File) { done = append(done, f.Name) },
		WithIdempotencyKey("key-1"),
	)
	require.NoError(t, err)
	require.NotNil(t, res.Submission)
	assert.Equal(t, "s1", res.Submission.ID)
	assert.Equal(t, model.SubmissionStatusSubmitted, res.Submission.Status)
	assert.Equal(t, files[0].Size, progress["a.pdf"])
	assert.Equal(t, files[1].Size, progress["b.pdf"])
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, done)
}

func TestSubmitAssignmentWithFiles_failureKeepsFilesPending(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"message": "You have already submitted this assignment",
		})
	}))

	called := false
	_, err := c.SubmitAssignmentWithFiles(context.Background(), "a1", "x", []upload.File{testPDF("a.pdf")}, nil,
		func(upload.File) { called = true })
	require.Error(t, err)
	assert.Equal(t, "You have already submitted this assignment", err.Error())
	assert.False(t, called)
}

func TestTokenRefreshReplaysOnce(t *testing.T) {
	var submits, logins int32
	c, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			atomic.AddInt32(&logins, 1)
			writeJSON(w, 200, map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"token": "fresh-token", "user": map[string]string{"_id": "u1", "role": "student"}},
			})
		case "/api/assignments/submit":
			atomic.AddInt32(&submits, 1)
			if r.Header.Get("Authorization") != "Bearer fresh-token" {
				writeJSON(w, 401, map[string]interface{}{"success": false, "message": "Invalid token"})
				return
			}
			writeJSON(w, 201, map[string]interface{}{"success": true, "message": "ok"})
		}
	}), func(cfg *config.Config) {
		cfg.Backend.Email = "student@example.com"
		cfg.Backend.Password = "secret"
	})

	_, err := c.SubmitAssignment(context.Background(), model.SubmitRequest{AssignmentID: "a1", Content: "Done"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, submits)
	assert.EqualValues(t, 1, logins)
	assert.Equal(t, "fresh-token", sess.Token())
}

func TestUnauthorizedWithoutCredentials(t *testing.T) {
	c, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	}))
	require.NoError(t, sess.Clear(context.Background()))

	_, err := c.StudentAssignments(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindUnauthorized, errors.KindOf(err))
	assert.ErrorIs(t, err, errors.ErrNotAuthenticated)
}

func TestAIGradeSubmission(t *testing.T) {
	var calls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		require.Equal(t, "/api/assignments/ai-grade/s1", r.URL.Path)
		var body model.AIGradeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if n == 1 {
			writeJSON(w, 200, map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"score": 82, "feedback": "Solid", "pdfProcessed": true, "pdfName": "report.pdf"},
			})
			return
		}
		writeJSON(w, 200, map[string]interface{}{"success": true, "data": map[string]interface{}{"score": 140, "feedback": "?"}})
	}))

	s, err := c.AIGradeSubmission(context.Background(), "s1", "")
	require.NoError(t, err)
	assert.Equal(t, 82.0, s.Score)
	assert.True(t, s.PDFProcessed)

	_, err = c.AIGradeSubmission(context.Background(), "s1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrSchemaValidation)
	assert.EqualValues(t, 2, calls)
}

func TestUnreadNotificationCount(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]interface{}{"success": true, "data": map[string]int{"unreadCount": 4}})
	}))

	n, err := c.UnreadNotificationCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestGradeSubmission_rejectsNegativeScore(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	}))

	_, err := c.GradeSubmission(context.Background(), "s1", model.GradeRequest{Score: -1})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestLogoutClearsSessionEvenOnFailure(t *testing.T) {
	c, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 500, map[string]interface{}{"success": false, "message": "down"})
	}))

	require.NoError(t, c.Logout(context.Background()))
	assert.Empty(t, sess.Token())
}
