package client

import (
	"context"
	"net/http"

	"tasklens/session"
)

// User is the account identity returned by the auth endpoints.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authData struct {
	Token string `json:"token"`
	User
}

// Login exchanges credentials for a bearer token and stores it in the
// session, notifying session subscribers.
func (c *Client) Login(ctx context.Context, email, password string) (session.Snapshot, error) {
	return c.authenticate(ctx, "auth.login", "/api/v1/auth/login", credentials{Email: email, Password: password})
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, name, email, password string) (session.Snapshot, error) {
	return c.authenticate(ctx, "auth.register", "/api/v1/auth/register", credentials{Name: name, Email: email, Password: password})
}

func (c *Client) authenticate(ctx context.Context, op, path string, creds credentials) (session.Snapshot, error) {
	var data authData
	if err := c.do(ctx, op, http.MethodPost, path, creds, &data, callOptions{}); err != nil {
		return session.Snapshot{}, err
	}
	snap := session.Snapshot{
		Token:  data.Token,
		UserID: data.ID,
		Name:   data.Name,
		Email:  data.Email,
	}
	if c.sess != nil {
		c.sess.Set(snap)
	}
	return snap, nil
}

// Me fetches the profile of the authenticated user.
func (c *Client) Me(ctx context.Context) (User, error) {
	var user User
	if err := c.do(ctx, "auth.me", http.MethodGet, "/api/v1/auth/me", nil, &user, callOptions{}); err != nil {
		return User{}, err
	}
	return user, nil
}
