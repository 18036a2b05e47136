package upload

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aarambh-client/internal/model"

	"github.com/gabriel-vasile/mimetype"
)

const pdfMIME = "application/pdf"

// FileIdentity identifies a selected file by name, size and modification
// time. It is not a content hash: two distinct files sharing all three
// collide.
type FileIdentity string

func IdentityOf(name string, size int64, modTime time.Time) FileIdentity {
	return FileIdentity(fmt.Sprintf("%s-%d-%d", name, size, modTime.UnixMilli()))
}

// File is a file selected for upload. Its content is opened lazily so a
// retry re-reads it from the start.
type File struct {
	Name        string
	Size        int64
	ModTime     time.Time
	ContentType string

	open func() (io.ReadCloser, error)
}

func (f File) Identity() FileIdentity {
	return IdentityOf(f.Name, f.Size, f.ModTime)
}

func (f File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("file %q has no content source", f.Name)
	}
	return f.open()
}

func (f File) IsPDF() bool {
	return f.ContentType == pdfMIME || strings.EqualFold(filepath.Ext(f.Name), ".pdf")
}

// Attachment describes the file as the backend will store it, pointing at url.
func (f File) Attachment(url string) model.Attachment {
	return model.Attachment{
		Name: f.Name,
		URL:  url,
		Type: f.ContentType,
		Size: f.Size,
	}
}

// FromPath stats the file and sniffs its MIME type from content.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to detect content type of %s: %w", path, err)
	}

	return File{
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: mtype.String(),
		open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FromBytes holds the content in memory. An empty contentType is sniffed.
func FromBytes(name string, data []byte, modTime time.Time, contentType string) File {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mimetype.Detect(data).String()
	}
	return File{
		Name:        name,
		Size:        int64(len(data)),
		ModTime:     modTime,
		ContentType: contentType,
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}
