package upload

import (
	"context"
	"io"
	"sync/atomic"

	"aarambh-client/internal/model"
)

// ProgressFunc receives cumulative bytes sent out of total.
type ProgressFunc func(loaded, total int64)

// Uploader stores one file and returns the attachment that references it.
// Implementations report progress through fn as bytes leave the process.
type Uploader interface {
	Upload(ctx context.Context, f File, fn ProgressFunc) (model.Attachment, error)
}

// ProgressReader counts bytes read from r and reports them to fn.
type ProgressReader struct {
	r      io.Reader
	total  int64
	loaded int64
	fn     ProgressFunc
}

func NewProgressReader(r io.Reader, total int64, fn ProgressFunc) *ProgressReader {
	return &ProgressReader{r: r, total: total, fn: fn}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		loaded := atomic.AddInt64(&p.loaded, int64(n))
		if p.fn != nil {
			p.fn(loaded, p.total)
		}
	}
	return n, err
}

func (p *ProgressReader) Loaded() int64 {
	return atomic.LoadInt64(&p.loaded)
}
