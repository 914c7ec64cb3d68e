package tui

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-authgate/order-console/api"
	"github.com/go-authgate/order-console/session"
)

var (
	_ Displayer        = (*PlainDisplayer)(nil)
	_ Displayer        = (*StyledDisplayer)(nil)
	_ Displayer        = NoopDisplayer{}
	_ session.Observer = (*PlainDisplayer)(nil)
)

func TestPlainDisplayer_SplitsListingsFromStatus(t *testing.T) {
	var data, status bytes.Buffer
	d := NewPlainDisplayer(&data, &status)

	d.Orders(&api.Page[api.Order]{
		Page:       1,
		TotalPages: 3,
		TotalItems: 51,
		Data: []api.Order{
			{ID: 1, Name: "Ann", Course: "QACX", Group: &api.Group{GroupName: "sep-2021"}},
			{ID: 2, Name: "Bob", Course: "PCX", Status: "In work"},
		},
	})

	lines := strings.Split(strings.TrimSpace(data.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 rows, got %q", data.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[0], "STATUS") {
		t.Errorf("Unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "sep-2021") || !strings.Contains(lines[2], "In work") {
		t.Errorf("Unexpected rows: %q", lines[1:])
	}
	if got := strings.TrimSpace(status.String()); got != "Page 1 of 3 (51 orders)" {
		t.Errorf("Unexpected summary: %q", got)
	}
}

func TestPlainDisplayer_ObserverMessages(t *testing.T) {
	var data, status bytes.Buffer
	d := NewPlainDisplayer(&data, &status)

	d.Refreshing()
	d.RefreshOK()
	d.AccessTokenRejected()
	d.TokenRefreshedRetrying()
	d.RefreshFailed(errors.New("invalid_grant"))
	d.Fatal(errors.New("boom"))

	want := []string{
		"Refreshing access token...",
		"Token refreshed successfully",
		"Access token rejected (401)",
		"Session restored, retrying request...",
		"Refresh failed: invalid_grant",
		"Error: boom",
	}
	got := strings.Split(strings.TrimSpace(status.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("Expected %d lines, got %q", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Line %d = %q, want %q", i, got[i], want[i])
		}
	}
	if data.Len() != 0 {
		t.Errorf("Status messages leaked into data output: %q", data.String())
	}
}

func TestPlainDisplayer_ConcurrentWrites(t *testing.T) {
	var data, status bytes.Buffer
	d := NewPlainDisplayer(&data, &status)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			d.Refreshing()
		}()
	}
	wg.Wait()

	if got := strings.Count(status.String(), "Refreshing access token...\n"); got != n {
		t.Errorf("Expected %d intact lines, got %d", n, got)
	}
}

func TestSessionFields(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		info   SessionInfo
		access string
	}{
		{
			name:   "no access token",
			info:   SessionInfo{HasRefresh: true},
			access: "none",
		},
		{
			name:   "valid",
			info:   SessionInfo{HasAccess: true, AccessExpiresAt: now.Add(5 * time.Minute), Threshold: time.Minute},
			access: "expires in 5m 0s",
		},
		{
			name:   "expiring soon",
			info:   SessionInfo{HasAccess: true, AccessExpiresAt: now.Add(30 * time.Second), Threshold: time.Minute},
			access: "expires in 30s (renewed on next request)",
		},
		{
			name:   "expired",
			info:   SessionInfo{HasAccess: true, AccessExpiresAt: now.Add(-2 * time.Hour)},
			access: "expired 2h 0m ago",
		},
		{
			name:   "malformed",
			info:   SessionInfo{HasAccess: true},
			access: "unreadable (treated as expired)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := sessionFields(tt.info, now)
			if got := fields[2][1]; got != tt.access {
				t.Errorf("access token = %q, want %q", got, tt.access)
			}
		})
	}
}

func TestStatsRows(t *testing.T) {
	rows := statsRows(api.OrderStats{"total": 10, "New": 4, "In work": 5, "null": 1})

	want := [][]string{
		{"In work", "5"},
		{"New", "4"},
		{"(no status)", "1"},
		{"total", "10"},
	}
	if len(rows) != len(want) {
		t.Fatalf("Expected %d rows, got %v", len(want), rows)
	}
	for i := range want {
		if rows[i][0] != want[i][0] || rows[i][1] != want[i][1] {
			t.Errorf("Row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Second, "0s"},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{3*time.Hour + 5*time.Minute, "3h 5m"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
