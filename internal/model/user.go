package model

import "encoding/json"

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var raw struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = User(raw.plain)
	u.ID = firstNonEmpty(u.ID, raw.MongoID)
	return nil
}

func (u User) IsTeacher() bool {
	return u.Role == RoleTeacher || u.Role == RoleAdmin
}
