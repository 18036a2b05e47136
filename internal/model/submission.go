package model

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"
)

type SubmissionStatus string

const (
	SubmissionStatusPending   SubmissionStatus = "pending"
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	SubmissionStatusGraded    SubmissionStatus = "graded"
)

// NormalizeStatus folds the backend's wider status set onto the three
// client states. "returned" is a graded submission handed back, and
// "resubmitted" carries no score yet.
func NormalizeStatus(raw string, score *float64) SubmissionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "graded", "returned":
		return SubmissionStatusGraded
	case "submitted", "resubmitted":
		if score != nil {
			return SubmissionStatusGraded
		}
		return SubmissionStatusSubmitted
	case "":
		if score != nil {
			return SubmissionStatusGraded
		}
		return SubmissionStatusPending
	default:
		return SubmissionStatusSubmitted
	}
}

// CanTransition reports whether a submission may move from one status to
// another. Only forward moves are allowed.
func (s SubmissionStatus) CanTransition(to SubmissionStatus) bool {
	return s.rank() < to.rank()
}

func (s SubmissionStatus) rank() int {
	switch s {
	case SubmissionStatusSubmitted:
		return 1
	case SubmissionStatusGraded:
		return 2
	default:
		return 0
	}
}

type Attachment struct {
	Name string `json:"name" validate:"required"`
	URL  string `json:"url" validate:"required"`
	Type string `json:"type"`
	Size int64  `json:"size" validate:"gte=0"`
}

func (a Attachment) IsPDF() bool {
	return a.Type == "application/pdf" || strings.EqualFold(filepath.Ext(a.Name), ".pdf")
}

type Submission struct {
	ID          string           `json:"id"`
	Assignment  Ref              `json:"assignment"`
	Student     Ref              `json:"student"`
	Content     string           `json:"content"`
	Attachments []Attachment     `json:"attachments"`
	SubmittedAt time.Time        `json:"submittedAt"`
	IsLate      bool             `json:"isLate"`
	Status      SubmissionStatus `json:"status"`
	Score       *float64         `json:"score"`
	Feedback    string           `json:"feedback"`
}

func (s *Submission) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string       `json:"id"`
		MongoID     string       `json:"_id"`
		Assignment  Ref          `json:"assignment"`
		Student     Ref          `json:"student"`
		Content     string       `json:"content"`
		Attachments []Attachment `json:"attachments"`
		SubmittedAt time.Time    `json:"submittedAt"`
		IsLate      bool         `json:"isLate"`
		Status      string       `json:"status"`
		Score       *float64     `json:"score"`
		Feedback    string       `json:"feedback"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Submission{
		ID:          firstNonEmpty(raw.ID, raw.MongoID),
		Assignment:  raw.Assignment,
		Student:     raw.Student,
		Content:     raw.Content,
		Attachments: raw.Attachments,
		SubmittedAt: raw.SubmittedAt,
		IsLate:      raw.IsLate,
		Score:       raw.Score,
		Feedback:    raw.Feedback,
	}
	s.Status = NormalizeStatus(raw.Status, raw.Score)
	return nil
}

func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

func (s Submission) PDFAttachments() []Attachment {
	var out []Attachment
	for _, a := range s.Attachments {
		if a.IsPDF() {
			out = append(out, a)
		}
	}
	return out
}
