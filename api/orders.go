package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ListOrders returns one page of orders.
func (c *Client) ListOrders(ctx context.Context, q OrderQuery) (*Page[Order], error) {
	var p Page[Order]
	if err := c.r.do(ctx, http.MethodGet, "/orders", q.Values(), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// OrderStats returns the order counts per status.
func (c *Client) OrderStats(ctx context.Context) (OrderStats, error) {
	var s OrderStats
	if err := c.r.do(ctx, http.MethodGet, "/orders/stats", nil, nil, &s); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateOrder changes the fields set in u.
func (c *Client) UpdateOrder(ctx context.Context, id int, u OrderUpdate) (*Order, error) {
	if u.IsEmpty() {
		return nil, errors.New("nothing to update")
	}
	var o Order
	path := fmt.Sprintf("/orders/%d/", id)
	if err := c.r.do(ctx, http.MethodPatch, path, nil, u, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// Comments lists the comments on an order.
func (c *Client) Comments(ctx context.Context, orderID int) ([]Comment, error) {
	var out []Comment
	path := fmt.Sprintf("/orders/%d/add_comment", orderID)
	if err := c.r.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddComment adds a comment to an order and returns the updated order.
func (c *Client) AddComment(ctx context.Context, orderID int, text string) (*Order, error) {
	var o Order
	path := fmt.Sprintf("/orders/%d/add_comment", orderID)
	if err := c.r.do(ctx, http.MethodPost, path, nil, map[string]string{"text": text}, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// DeleteComment removes a comment from an order.
func (c *Client) DeleteComment(ctx context.Context, orderID, commentID int) error {
	path := fmt.Sprintf("/orders/%d/comment/%d", orderID, commentID)
	return c.r.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// Groups returns one page of groups.
func (c *Client) Groups(ctx context.Context, page int) (*Page[Group], error) {
	var p Page[Group]
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if err := c.r.do(ctx, http.MethodGet, "/orders/groups", q, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateGroup creates a group.
func (c *Client) CreateGroup(ctx context.Context, name string) (*Group, error) {
	var g Group
	in := map[string]string{"group_name": name}
	if err := c.r.do(ctx, http.MethodPost, "/orders/groups", nil, in, &g); err != nil {
		return nil, err
	}
	return &g, nil
}
