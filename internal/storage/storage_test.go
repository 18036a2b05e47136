package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"aarambh-client/internal/config"
	"aarambh-client/internal/model"
	"aarambh-client/internal/upload"
	"aarambh-client/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	deleted []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		f.deleted = append(f.deleted, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3(t *testing.T) (*fakeS3, *S3Storage) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Storage.S3.Endpoint = srv.URL
	cfg.Storage.S3.AccessKey = "test"
	cfg.Storage.S3.SecretKey = "test"
	cfg.Storage.S3.Bucket = "attachments"

	store, err := NewS3Storage(cfg)
	require.NoError(t, err)
	return fake, store
}

func TestS3Storage_UploadAndDelete(t *testing.T) {
	fake, store := newFakeS3(t)

	location, err := store.Upload(context.Background(), "submissions/k/essay.pdf", strings.NewReader("%PDF-1.4 body"), "application/pdf")
	require.NoError(t, err)
	assert.Contains(t, location, "/attachments/submissions/k/essay.pdf")
	assert.Equal(t, []byte("%PDF-1.4 body"), fake.objects["/attachments/submissions/k/essay.pdf"])
	assert.Equal(t, "application/pdf", fake.types["/attachments/submissions/k/essay.pdf"])

	require.NoError(t, store.Delete(context.Background(), "submissions/k/essay.pdf"))
	assert.Equal(t, []string{"/attachments/submissions/k/essay.pdf"}, fake.deleted)
}

func TestAttachmentUploader_S3(t *testing.T) {
	fake, store := newFakeS3(t)
	u := NewAttachmentUploader(store, "submissions", "")

	data := []byte("%PDF-1.4\nreport body")
	f := upload.FromBytes("Final Report.pdf", data, time.Now(), "application/pdf")

	var last int64
	att, err := u.Upload(context.Background(), f, func(loaded, total int64) {
		last = loaded
		assert.Equal(t, int64(len(data)), total)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), last)
	assert.Equal(t, "Final Report.pdf", att.Name)
	assert.Equal(t, int64(len(data)), att.Size)
	assert.True(t, strings.HasSuffix(att.URL, "/Final_Report.pdf"), att.URL)
	require.Len(t, fake.objects, 1)

	require.NoError(t, u.Discard(context.Background(), att))
	require.Len(t, fake.deleted, 1)
	for path := range fake.objects {
		assert.Equal(t, path, fake.deleted[0])
	}
}

type memStorage struct {
	keys    []string
	deleted []string
	err     error
}

func (m *memStorage) Upload(ctx context.Context, key string, data io.Reader, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if _, err := io.Copy(io.Discard, data); err != nil {
		return "", err
	}
	m.keys = append(m.keys, key)
	return "http://minio.local/bucket/" + key, nil
}

func (m *memStorage) KeyOf(location string) (string, bool) {
	return strings.CutPrefix(location, "http://minio.local/bucket/")
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

func TestAttachmentUploader_publicURL(t *testing.T) {
	store := &memStorage{}
	u := NewAttachmentUploader(store, "/submissions/", "https://cdn.example/")

	att, err := u.Upload(context.Background(), upload.FromBytes("a.pdf", []byte("%PDF-1.4"), time.Now(), "application/pdf"), nil)
	require.NoError(t, err)
	require.Len(t, store.keys, 1)
	assert.True(t, strings.HasPrefix(store.keys[0], "submissions/"))
	assert.Equal(t, "https://cdn.example/"+store.keys[0], att.URL)

	require.NoError(t, u.Discard(context.Background(), att))
	assert.Equal(t, store.keys, store.deleted)
}

func TestAttachmentUploader_discardWhenBucketNamedLikePrefix(t *testing.T) {
	fake, store := newFakeS3(t)
	store.bucket = "submissions"
	u := NewAttachmentUploader(store, "submissions", "")

	att, err := u.Upload(context.Background(), upload.FromBytes("a.pdf", []byte("%PDF-1.4"), time.Now(), "application/pdf"), nil)
	require.NoError(t, err)
	require.Len(t, fake.objects, 1)

	require.NoError(t, u.Discard(context.Background(), att))
	require.Len(t, fake.deleted, 1)
	assert.Contains(t, fake.objects, fake.deleted[0])
	assert.True(t, strings.HasPrefix(fake.deleted[0], "/submissions/submissions/"), fake.deleted[0])
}

func TestAttachmentUploader_discardPublicURLWithPrefixInPath(t *testing.T) {
	store := &memStorage{}
	u := NewAttachmentUploader(store, "submissions", "https://cdn.example/submissions")

	att, err := u.Upload(context.Background(), upload.FromBytes("a.pdf", []byte("%PDF-1.4"), time.Now(), "application/pdf"), nil)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/submissions/"+store.keys[0], att.URL)

	require.NoError(t, u.Discard(context.Background(), att))
	assert.Equal(t, store.keys, store.deleted)

	assert.Error(t, u.Discard(context.Background(), model.Attachment{Name: "b.pdf", URL: "https://cdn.example/other/b.pdf"}))
	assert.Len(t, store.deleted, 1)
}

func TestAttachmentUploader_failure(t *testing.T) {
	u := NewAttachmentUploader(&memStorage{err: io.ErrUnexpectedEOF}, "submissions", "")

	_, err := u.Upload(context.Background(), upload.FromBytes("a.pdf", []byte("%PDF-1.4"), time.Now(), "application/pdf"), nil)
	require.Error(t, err)
	assert.Equal(t, errors.KindNetwork, errors.KindOf(err))
	assert.Equal(t, errors.UploadFailed, errors.MessageOf(err, ""))
}

func TestAttachmentUploader_discardForeignURL(t *testing.T) {
	u := NewAttachmentUploader(&memStorage{}, "submissions", "")
	assert.Error(t, u.Discard(context.Background(), model.Attachment{Name: "x.pdf", URL: "https://elsewhere.example/x.pdf"}))
}

func TestNewUploader(t *testing.T) {
	cfg := config.Default()
	fallback := NewAttachmentUploader(&memStorage{}, "x", "")

	up, err := NewUploader(cfg, fallback)
	require.NoError(t, err)
	assert.Same(t, fallback, up)

	cfg.Storage.Uploader = config.UploaderS3
	cfg.Storage.S3.Bucket = "attachments"
	up, err = NewUploader(cfg, fallback)
	require.NoError(t, err)
	assert.IsType(t, &AttachmentUploader{}, up)
}
