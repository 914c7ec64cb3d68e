package api

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultExportConcurrency bounds the page requests AllOrders keeps in flight.
const DefaultExportConcurrency = 4

// AllOrders fetches every page matching q, starting from page 1, and returns
// the orders in page order. Pages after the first are fetched concurrently.
func (c *Client) AllOrders(ctx context.Context, q OrderQuery, concurrency int) ([]Order, error) {
	if concurrency < 1 {
		concurrency = DefaultExportConcurrency
	}

	q.Page = 1
	first, err := c.ListOrders(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("page 1: %w", err)
	}
	if first.TotalPages <= 1 {
		return first.Data, nil
	}

	pages := make([][]Order, first.TotalPages)
	pages[0] = first.Data

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 2; i <= first.TotalPages; i++ {
		pq := q
		pq.Page = i
		g.Go(func() error {
			p, err := c.ListOrders(gctx, pq)
			if err != nil {
				return fmt.Errorf("page %d: %w", pq.Page, err)
			}
			pages[pq.Page-1] = p.Data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	orders := make([]Order, 0, first.TotalItems)
	for _, p := range pages {
		orders = append(orders, p...)
	}
	return orders, nil
}

var csvHeader = []string{
	"id", "name", "surname", "email", "phone", "age", "course", "course_format",
	"course_type", "status", "sum", "alreadyPaid", "group", "manager", "created_at",
}

// WriteOrdersCSV writes orders as CSV with a header row.
func WriteOrdersCSV(w io.Writer, orders []Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, o := range orders {
		var group, created string
		if o.Group != nil {
			group = o.Group.GroupName
		}
		if !o.CreatedAt.IsZero() {
			created = o.CreatedAt.Format(time.RFC3339)
		}
		record := []string{
			strconv.Itoa(o.ID),
			o.Name,
			o.Surname,
			o.Email,
			o.Phone,
			strconv.Itoa(o.Age),
			o.Course,
			o.CourseFormat,
			o.CourseType,
			o.Status,
			strconv.Itoa(o.Sum),
			strconv.Itoa(o.AlreadyPaid),
			group,
			o.Manager.DisplayName(),
			created,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
