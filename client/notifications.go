package client

import (
	"context"
	"net/http"

	"tasklens/domain"
)

// ListNotifications fetches the caller's notifications, read and unread.
func (c *Client) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	ns := []domain.Notification{}
	if err := c.do(ctx, "notifications.list", http.MethodGet, "/api/v1/notifications", nil, &ns, callOptions{}); err != nil {
		return nil, err
	}
	return ns, nil
}

// MarkAllNotificationsRead flips every notification to read. Calling it with
// nothing unread succeeds and changes nothing.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, "notifications.readAll", http.MethodPatch, "/api/v1/notifications/read-all", nil, nil, callOptions{})
}

// MarkNotificationRead flips a single notification to read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, "notifications.readOne", http.MethodPatch, "/api/v1/notifications/"+id+"/read", nil, nil, callOptions{})
}
