package client

import (
	"context"
	"net/url"

	"aarambh-client/internal/model"
)

func (c *Client) Notifications(ctx context.Context) ([]model.Notification, error) {
	var out []model.Notification
	if err := c.getJSON(ctx, "/notifications", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UnreadNotificationCount(ctx context.Context) (int, error) {
	var out model.UnreadCount
	if err := c.getJSON(ctx, "/notifications/unread-count", &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.postJSON(ctx, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.postJSON(ctx, "/notifications/mark-all-read", nil, nil)
}
