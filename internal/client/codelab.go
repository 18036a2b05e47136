package client

import (
	"context"

	"aarambh-client/internal/model"
)

// ExecuteCode runs a script on the backend's execution proxy. An error
// reported inside a successful envelope is returned in the result, not as
// an error.
func (c *Client) ExecuteCode(ctx context.Context, req model.ExecuteRequest) (*model.ExecuteResult, error) {
	if err := c.checkInput(req); err != nil {
		return nil, err
	}
	var out model.ExecuteResult
	if err := c.postJSON(ctx, "/code-lab/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
