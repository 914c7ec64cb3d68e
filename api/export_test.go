package api

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
)

// pagedOrders serves total orders, perPage at a time.
func pagedOrders(total, perPage int, failPage int, inFlight, peak *atomic.Int32) http.HandlerFunc {
	pages := (total + perPage - 1) / perPage
	return func(w http.ResponseWriter, r *http.Request) {
		if inFlight != nil {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page == failPage {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var data bytes.Buffer
		for i := (page-1)*perPage + 1; i <= page*perPage && i <= total; i++ {
			if data.Len() > 0 {
				data.WriteString(",")
			}
			fmt.Fprintf(&data, `{"id": %d, "name": "n%d", "course": %q}`, i, i, r.URL.Query().Get("course"))
		}
		fmt.Fprintf(w, `{"page": %d, "total_items": %d, "total_pages": %d, "data": [%s]}`,
			page, total, pages, data.String())
	}
}

func TestAllOrders_FetchesEveryPageInOrder(t *testing.T) {
	var inFlight, peak atomic.Int32
	c := newTestClient(t, pagedOrders(47, 5, 0, &inFlight, &peak))

	orders, err := c.AllOrders(context.Background(), OrderQuery{
		Page:    7,
		Filters: map[string]string{"course": "PCX"},
	}, 3)
	if err != nil {
		t.Fatalf("AllOrders() error = %v", err)
	}
	if len(orders) != 47 {
		t.Fatalf("Expected 47 orders, got %d", len(orders))
	}
	for i, o := range orders {
		if o.ID != i+1 {
			t.Fatalf("Order %d has id %d, want %d", i, o.ID, i+1)
		}
		if o.Course != "PCX" {
			t.Fatalf("Filter was not forwarded: %+v", o)
		}
	}
	if p := peak.Load(); p > 3 {
		t.Errorf("Expected at most 3 concurrent requests, saw %d", p)
	}
}

func TestAllOrders_SinglePage(t *testing.T) {
	c := newTestClient(t, pagedOrders(3, 25, 0, nil, nil))

	orders, err := c.AllOrders(context.Background(), OrderQuery{}, 0)
	if err != nil {
		t.Fatalf("AllOrders() error = %v", err)
	}
	if len(orders) != 3 {
		t.Errorf("Expected 3 orders, got %d", len(orders))
	}
}

func TestAllOrders_PageFailure(t *testing.T) {
	c := newTestClient(t, pagedOrders(30, 5, 4, nil, nil))

	_, err := c.AllOrders(context.Background(), OrderQuery{}, 2)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected a 400 APIError, got %v", err)
	}
}

func TestWriteOrdersCSV(t *testing.T) {
	orders := []Order{
		{ID: 1, Name: "Ann", Surname: "Lee, Jr.", Sum: 100, Group: &Group{GroupName: "sep"}},
		{ID: 2, Name: "Bob", Manager: &User{Email: "m@x.io"}},
	}

	var buf bytes.Buffer
	if err := WriteOrdersCSV(&buf, orders); err != nil {
		t.Fatalf("WriteOrdersCSV() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Output is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected header and 2 rows, got %d", len(records))
	}
	if records[0][0] != "id" || len(records[0]) != len(records[1]) {
		t.Errorf("Unexpected header: %v", records[0])
	}
	if records[1][2] != "Lee, Jr." || records[1][12] != "sep" {
		t.Errorf("Unexpected first row: %v", records[1])
	}
	if records[2][13] != "m@x.io" {
		t.Errorf("Expected manager email in second row, got %v", records[2])
	}
}
