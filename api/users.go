package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ListUsers returns one page of users.
func (c *Client) ListUsers(ctx context.Context, page int) (*Page[User], error) {
	if page < 1 {
		page = 1
	}
	var p Page[User]
	q := url.Values{"page": {strconv.Itoa(page)}}
	if err := c.r.do(ctx, http.MethodGet, "/users", q, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// BlockUser deactivates a user.
func (c *Client) BlockUser(ctx context.Context, id int) (*User, error) {
	return c.setBlocked(ctx, id, "block")
}

// UnblockUser reactivates a user.
func (c *Client) UnblockUser(ctx context.Context, id int) (*User, error) {
	return c.setBlocked(ctx, id, "unblock")
}

func (c *Client) setBlocked(ctx context.Context, id int, action string) (*User, error) {
	var u User
	path := fmt.Sprintf("/users/%d/%s", id, action)
	if err := c.r.do(ctx, http.MethodPut, path, nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
