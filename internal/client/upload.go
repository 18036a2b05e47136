package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"aarambh-client/internal/model"
	"aarambh-client/internal/upload"
	"aarambh-client/pkg/errors"
)

// FileProgressFunc reports bytes of one file sent so far.
type FileProgressFunc func(f upload.File, loaded, total int64)

// FileDoneFunc is called once per file after the backend accepted it.
type FileDoneFunc func(f upload.File)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFilePart(mw *multipart.Writer, field string, f upload.File, fn upload.ProgressFunc) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(f.Name)))
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create part for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	if _, err := io.Copy(part, upload.NewProgressReader(rc, f.Size, fn)); err != nil {
		return fmt.Errorf("failed to stream %s: %w", f.Name, err)
	}
	return nil
}

// multipartBody streams the form through a pipe so files are never held in
// memory. write runs in its own goroutine for each attempt.
func multipartBody(write func(mw *multipart.Writer) error) bodyFunc {
	return func() (io.Reader, string, error) {
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			err := write(mw)
			if err == nil {
				err = mw.Close()
			}
			pw.CloseWithError(err)
		}()
		return pr, mw.FormDataContentType(), nil
	}
}

// SubmitAssignmentWithFiles sends content and every file in one multipart
// request. Progress is reported per file as its part is streamed; onDone is
// called for each file only once the backend accepted the submission.
func (c *Client) SubmitAssignmentWithFiles(
	ctx context.Context,
	assignmentID string,
	content string,
	files []upload.File,
	onProgress FileProgressFunc,
	onDone FileDoneFunc,
	opts ...CallOption,
) (*model.SubmitResult, error) {
	if assignmentID == "" {
		return nil, errors.ValidationError{Field: "assignmentId", Message: "Assignment is required"}
	}

	body := multipartBody(func(mw *multipart.Writer) error {
		if err := mw.WriteField("assignmentId", assignmentID); err != nil {
			return err
		}
		if err := mw.WriteField("content", content); err != nil {
			return err
		}
		for _, f := range files {
			f := f
			fn := func(loaded, total int64) {
				if onProgress != nil {
					onProgress(f, loaded, total)
				}
			}
			if err := writeFilePart(mw, "attachments", f, fn); err != nil {
				return err
			}
		}
		return nil
	})

	c.log.Debug().
		Str("assignment_id", assignmentID).
		Int("files", len(files)).
		Msg("Submitting assignment with files")

	var out model.SubmitResult
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/assignments/submit",
		body:   body,
		auth:   true,
		opts:   opts,
	}, &out)
	if err != nil {
		return nil, err
	}

	if onDone != nil {
		for _, f := range files {
			onDone(f)
		}
	}
	return &out, nil
}

// UploadFile stores a single file through POST /api/upload and returns the
// attachment that references it. It satisfies upload.Uploader.
func (c *Client) UploadFile(ctx context.Context, f upload.File, fn upload.ProgressFunc) (model.Attachment, error) {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return model.Attachment{}, &errors.APIError{Kind: errors.KindUnauthorized, Message: noTokenMessage, Err: err}
	}

	body, contentType, _ := multipartBody(func(mw *multipart.Writer) error {
		return writeFilePart(mw, "file", f, fn)
	})()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", body)
	if err != nil {
		body.(io.Closer).Close()
		return model.Attachment{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Attachment{}, errors.NewNetworkError(err, errors.NetworkFailure)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Attachment{}, errors.NewNetworkError(err, errors.NetworkFailure)
	}

	url, err := decodeUpload(resp.StatusCode, raw)
	if err != nil {
		c.log.Warn().Str("file", f.Name).Int("status", resp.StatusCode).Err(err).Msg("Upload rejected")
		return model.Attachment{}, err
	}
	return f.Attachment(url), nil
}

// Upload adapts UploadFile to upload.Uploader.
func (c *Client) Upload(ctx context.Context, f upload.File, fn upload.ProgressFunc) (model.Attachment, error) {
	return c.UploadFile(ctx, f, fn)
}

type uploadResponse struct {
	URL     string `json:"url"`
	Message string `json:"message"`
	Data    *struct {
		URL string `json:"url"`
	} `json:"data"`
}

// decodeUpload applies the upload endpoint's own failure rules: a 429 that
// mentions "Too many requests" is a rate limit, any other failure carries
// the JSON message or "Upload failed".
func decodeUpload(status int, raw []byte) (string, error) {
	var body uploadResponse
	parsed := json.Unmarshal(raw, &body) == nil

	if status == http.StatusTooManyRequests && strings.Contains(string(raw), "Too many requests") {
		msg := errors.RateLimitMessage
		if parsed && body.Message != "" {
			msg = body.Message
		}
		return "", &errors.APIError{Kind: errors.KindRateLimit, Status: status, Message: msg}
	}

	if status < 200 || status >= 300 {
		msg := errors.UploadFailed
		if parsed && body.Message != "" {
			msg = body.Message
		}
		return "", errors.NewAPIError(status, msg)
	}

	if parsed {
		if body.URL != "" {
			return body.URL, nil
		}
		if body.Data != nil && body.Data.URL != "" {
			return body.Data.URL, nil
		}
	}
	return "", &errors.APIError{Kind: errors.KindGeneric, Status: status, Message: errors.UploadFailed, Err: errors.ErrEmptyResponse}
}
