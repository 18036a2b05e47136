package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"aarambh-client/internal/config"
	"aarambh-client/internal/logger"
	"aarambh-client/internal/model"
	"aarambh-client/internal/upload"
	"aarambh-client/pkg/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// AttachmentUploader stores submission files in object storage for the
// staged strategy. It satisfies upload.Uploader.
type AttachmentUploader struct {
	store     Storage
	prefix    string
	publicURL string
	log       zerolog.Logger
}

// NewAttachmentUploader stores objects under prefix. When publicURL is set
// attachment URLs are built from it instead of the store's location.
func NewAttachmentUploader(store Storage, prefix, publicURL string) *AttachmentUploader {
	return &AttachmentUploader{
		store:     store,
		prefix:    strings.Trim(prefix, "/"),
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       logger.For("storage"),
	}
}

func (u *AttachmentUploader) key(name string) string {
	clean := unsafeKeyChars.ReplaceAllString(name, "_")
	return path.Join(u.prefix, uuid.NewString(), clean)
}

func (u *AttachmentUploader) Upload(ctx context.Context, f upload.File, fn upload.ProgressFunc) (model.Attachment, error) {
	rc, err := f.Open()
	if err != nil {
		return model.Attachment{}, fmt.Errorf("%w: %v", errors.ErrInvalidFile, err)
	}
	defer rc.Close()

	key := u.key(f.Name)
	location, err := u.store.Upload(ctx, key, upload.NewProgressReader(rc, f.Size, fn), f.ContentType)
	if err != nil {
		u.log.Error().Err(err).Str("file", f.Name).Str("key", key).Msg("Attachment upload failed")
		return model.Attachment{}, &errors.APIError{Kind: errors.KindNetwork, Message: errors.UploadFailed, Err: err}
	}

	if u.publicURL != "" {
		location = u.publicURL + "/" + escapeKey(key)
	}
	u.log.Debug().Str("file", f.Name).Str("key", key).Msg("Attachment stored")
	return f.Attachment(location), nil
}

// Discard removes a stored attachment that never made it into a
// submission.
func (u *AttachmentUploader) Discard(ctx context.Context, att model.Attachment) error {
	key, ok := u.keyOf(att.URL)
	if !ok {
		return fmt.Errorf("attachment %s was not stored here", att.Name)
	}
	return u.store.Delete(ctx, key)
}

// keyOf strips the location prefix the URL was built with. Only keys under
// the uploader's own prefix are returned.
func (u *AttachmentUploader) keyOf(location string) (string, bool) {
	var (
		key string
		ok  bool
	)
	if u.publicURL != "" {
		var escaped string
		if escaped, ok = strings.CutPrefix(location, u.publicURL+"/"); ok {
			var err error
			if key, err = url.PathUnescape(escaped); err != nil {
				return "", false
			}
		}
	} else {
		key, ok = u.store.KeyOf(location)
	}
	if !ok || (u.prefix != "" && !strings.HasPrefix(key, u.prefix+"/")) {
		return "", false
	}
	return key, true
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// NewUploader returns the attachment uploader selected by config. The http
// uploader is the backend's own upload endpoint, passed in as fallback.
func NewUploader(cfg *config.Config, fallback upload.Uploader) (upload.Uploader, error) {
	if cfg.Storage.Uploader != config.UploaderS3 {
		return fallback, nil
	}
	store, err := NewS3Storage(cfg)
	if err != nil {
		return nil, err
	}
	return NewAttachmentUploader(store, "submissions", cfg.Storage.S3.PublicURL), nil
}
