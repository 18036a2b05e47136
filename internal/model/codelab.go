package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

type ExecuteRequest struct {
	Script       string `json:"script" validate:"required"`
	Language     string `json:"language" validate:"required"`
	VersionIndex string `json:"versionIndex"`
}

type ExecuteResult struct {
	Output     string  `json:"output"`
	StatusCode int     `json:"statusCode,omitempty"`
	Memory     Measure `json:"memory,omitempty"`
	CPUTime    Measure `json:"cpuTime,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Measure is a numeric execution metric. The execution service reports it
// either as a number or as a numeric string; anything else decodes as unset.
type Measure struct {
	Value float64
	Valid bool
}

func (m *Measure) UnmarshalJSON(data []byte) error {
	*m = Measure{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			*m = Measure{Value: v, Valid: true}
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	*m = Measure{Value: v, Valid: true}
	return nil
}

func (m Measure) MarshalJSON() ([]byte, error) {
	if !m.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(m.Value)
}
