package client

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"aarambh-client/internal/model"
	"aarambh-client/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteCode(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/code-lab/execute", r.URL.Path)
		var body model.ExecuteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Script == "boom" {
			writeJSON(w, 200, map[string]interface{}{
				"success": true,
				"data":    map[string]interface{}{"output": "", "error": "NameError: name 'boom' is not defined"},
			})
			return
		}
		writeJSON(w, 200, map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"output": "hi\n", "memory": "3072", "cpuTime": 0.01},
		})
	}))

	res, err := c.ExecuteCode(context.Background(), model.ExecuteRequest{Script: "print('hi')", Language: "python3", VersionIndex: "4"})
	require.NoError(t, err)
	assert.Equal(t, "hi\n", res.Output)
	assert.True(t, res.Memory.Valid)

	res, err = c.ExecuteCode(context.Background(), model.ExecuteRequest{Script: "boom", Language: "python3"})
	require.NoError(t, err)
	assert.Contains(t, res.Error, "NameError")
}

func TestExecuteCode_rejectsEmptyScript(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	}))

	_, err := c.ExecuteCode(context.Background(), model.ExecuteRequest{Language: "python3"})
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}
