package client

import (
	"context"
	"net/url"

	"aarambh-client/internal/model"
)

func (c *Client) StudentAssignments(ctx context.Context) ([]model.Assignment, error) {
	var out []model.Assignment
	if err := c.getJSON(ctx, "/assignments/student", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TeacherAssignments(ctx context.Context) ([]model.Assignment, error) {
	var out []model.Assignment
	if err := c.getJSON(ctx, "/assignments/teacher", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateAssignment(ctx context.Context, a model.NewAssignment) (*model.Assignment, error) {
	if err := c.checkInput(a); err != nil {
		return nil, err
	}
	var out model.Assignment
	if err := c.postJSON(ctx, "/assignments/create", a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AssignmentSubmissions(ctx context.Context, assignmentID string) ([]model.Submission, error) {
	var out []model.Submission
	if err := c.getJSON(ctx, "/assignments/"+url.PathEscape(assignmentID)+"/submissions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitAssignment is the text-only entry point. Staged submissions also
// use it, carrying references to attachments uploaded beforehand.
func (c *Client) SubmitAssignment(ctx context.Context, req model.SubmitRequest, opts ...CallOption) (*model.SubmitResult, error) {
	if err := c.checkInput(req); err != nil {
		return nil, err
	}
	var out model.SubmitResult
	if err := c.postJSON(ctx, "/assignments/submit", req, &out, opts...); err != nil {
		return nil, err
	}
	return &out, nil
}

// GradeSubmission commits a score. It is the only call that writes one.
func (c *Client) GradeSubmission(ctx context.Context, submissionID string, req model.GradeRequest) (*model.Submission, error) {
	if err := c.checkInput(req); err != nil {
		return nil, err
	}
	var out model.Submission
	if err := c.postJSON(ctx, "/assignments/grade/"+url.PathEscape(submissionID), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AIGradeSubmission asks the backend for an advisory score. Nothing is
// cached: every call is a fresh request.
func (c *Client) AIGradeSubmission(ctx context.Context, submissionID, prompt string) (*model.AISuggestion, error) {
	var out model.AISuggestion
	if err := c.postJSON(ctx, "/assignments/ai-grade/"+url.PathEscape(submissionID), model.AIGradeRequest{AIPrompt: prompt}, &out); err != nil {
		return nil, err
	}
	if err := c.check(out); err != nil {
		return nil, err
	}
	return &out, nil
}
