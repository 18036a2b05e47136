package model

import (
	"bytes"
	"encoding/json"
)

// Ref is a reference to another backend entity. The backend sends either a
// bare id string or a populated object with "id" or "_id"; both decode here.
type Ref struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Category string `json:"category,omitempty"`
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = Ref{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Ref{ID: id}
		return nil
	}

	var raw struct {
		ID       string `json:"id"`
		MongoID  string `json:"_id"`
		Name     string `json:"name"`
		Email    string `json:"email"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Ref{
		ID:       firstNonEmpty(raw.ID, raw.MongoID),
		Name:     raw.Name,
		Email:    raw.Email,
		Category: raw.Category,
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
