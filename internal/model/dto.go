package model

import "encoding/json"

// Envelope is the backend's response wrapper for every JSON endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// SubmitRequest is the text-only (or staged, with pre-uploaded attachments)
// create-submission payload.
type SubmitRequest struct {
	AssignmentID string       `json:"assignmentId" validate:"required"`
	Content      string       `json:"content"`
	Attachments  []Attachment `json:"attachments,omitempty" validate:"dive"`
}

type SubmitResult struct {
	Message    string      `json:"message"`
	Submission *Submission `json:"submission,omitempty"`
}

type GradeRequest struct {
	Score    float64 `json:"score" validate:"gte=0"`
	Feedback string  `json:"feedback"`
}

type AIGradeRequest struct {
	AIPrompt string `json:"aiPrompt,omitempty"`
}

// AISuggestion is advisory output of the AI grader. It is never written into
// a submission's score by this client.
type AISuggestion struct {
	Score        float64  `json:"score" validate:"gte=0,lte=100"`
	Feedback     string   `json:"feedback"`
	Suggestions  []string `json:"suggestions,omitempty"`
	PDFProcessed bool     `json:"pdfProcessed,omitempty"`
	PDFName      string   `json:"pdfName,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     Role   `json:"role,omitempty"`
}

type LoginResponse struct {
	Token string `json:"token" validate:"required"`
	User  User   `json:"user"`
}
