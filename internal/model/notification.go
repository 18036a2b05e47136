package model

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	NotificationAssignmentCreated NotificationType = "assignment_created"
	NotificationAssignmentDue     NotificationType = "assignment_due"
	NotificationAssignmentGraded  NotificationType = "assignment_graded"
	NotificationGradePosted       NotificationType = "grade_posted"
	NotificationMessage           NotificationType = "message"
	NotificationSystem            NotificationType = "system"
)

type Notification struct {
	ID         string           `json:"id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	IsRead     bool             `json:"isRead"`
	Assignment Ref              `json:"relatedAssignment"`
	Course     Ref              `json:"relatedCourse"`
	CreatedAt  time.Time        `json:"createdAt"`
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	type plain Notification
	var raw struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Notification(raw.plain)
	n.ID = firstNonEmpty(n.ID, raw.MongoID)
	return nil
}

type UnreadCount struct {
	UnreadCount int `json:"unreadCount"`
}
