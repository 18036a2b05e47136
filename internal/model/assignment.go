package model

import (
	"encoding/json"
	"time"
)

type Assignment struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Course       Ref          `json:"course"`
	Teacher      Ref          `json:"teacher"`
	DueDate      time.Time    `json:"dueDate"`
	DaysLeft     int          `json:"daysLeft"`
	IsUrgent     bool         `json:"isUrgent"`
	IsOverdue    bool         `json:"isOverdue"`
	TotalPoints  float64      `json:"totalPoints"`
	PassingScore float64      `json:"passingScore"`
	Instructions string       `json:"instructions"`
	Attachments  []Attachment `json:"attachments"`
	Submission   *Submission  `json:"submission,omitempty"`
}

func (a *Assignment) UnmarshalJSON(data []byte) error {
	type plain Assignment
	var raw struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Assignment(raw.plain)
	a.ID = firstNonEmpty(a.ID, raw.MongoID)
	return nil
}

// Status is pending until a submission exists.
func (a Assignment) Status() SubmissionStatus {
	if a.Submission == nil {
		return SubmissionStatusPending
	}
	return a.Submission.Status
}

// CanSubmit reports whether submitting is a forward move from the current
// status. The backend accepts one submission per student and assignment,
// and a graded one is final.
func (a Assignment) CanSubmit() bool {
	return a.Status().CanTransition(SubmissionStatusSubmitted)
}

// NewAssignment is the teacher's create-assignment payload.
type NewAssignment struct {
	Title        string    `json:"title" validate:"required"`
	Description  string    `json:"description" validate:"required"`
	CourseID     string    `json:"courseId" validate:"required"`
	DueDate      time.Time `json:"dueDate" validate:"required"`
	TotalPoints  float64   `json:"totalPoints" validate:"gt=0"`
	PassingScore float64   `json:"passingScore" validate:"gte=0,ltefield=TotalPoints"`
	Instructions string    `json:"instructions,omitempty"`
}
