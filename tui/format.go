package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-authgate/order-console/api"
)

// SessionInfo describes the stored credentials for the status command.
type SessionInfo struct {
	Store           string
	CanEnter        bool
	HasAccess       bool
	HasRefresh      bool
	AccessExpiresAt time.Time
	Threshold       time.Duration
}

var (
	orderHeaders   = []string{"ID", "NAME", "SURNAME", "EMAIL", "PHONE", "COURSE", "FORMAT", "TYPE", "STATUS", "SUM", "PAID", "GROUP", "MANAGER", "CREATED"}
	userHeaders    = []string{"ID", "EMAIL", "NAME", "ACTIVE", "MANAGER", "ORDERS", "IN WORK", "LAST UPDATE"}
	groupHeaders   = []string{"ID", "NAME"}
	commentHeaders = []string{"ID", "AUTHOR", "CREATED", "TEXT"}
	statsHeaders   = []string{"STATUS", "ORDERS"}
	fieldHeaders   = []string{"FIELD", "VALUE"}
)

func orderRows(orders []api.Order) [][]string {
	rows := make([][]string, 0, len(orders))
	for _, o := range orders {
		group := ""
		if o.Group != nil {
			group = o.Group.GroupName
		}
		rows = append(rows, []string{
			strconv.Itoa(o.ID),
			o.Name,
			o.Surname,
			o.Email,
			o.Phone,
			o.Course,
			o.CourseFormat,
			o.CourseType,
			orDash(o.Status),
			strconv.Itoa(o.Sum),
			strconv.Itoa(o.AlreadyPaid),
			orDash(group),
			orDash(o.Manager.DisplayName()),
			formatDate(o.CreatedAt),
		})
	}
	return rows
}

func userRows(users []api.User) [][]string {
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		name := ""
		if u.Profile != nil {
			name = strings.TrimSpace(u.Profile.FirstName + " " + u.Profile.LastName)
		}
		rows = append(rows, []string{
			strconv.Itoa(u.ID),
			u.Email,
			orDash(name),
			yesNo(u.IsActive),
			yesNo(u.IsManager),
			strconv.Itoa(u.TotalOrders),
			strconv.Itoa(u.OrdersInWork),
			formatDate(u.UpdatedAt),
		})
	}
	return rows
}

func groupRows(groups []api.Group) [][]string {
	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{strconv.Itoa(g.ID), g.GroupName})
	}
	return rows
}

func commentRows(comments []api.Comment) [][]string {
	rows := make([][]string, 0, len(comments))
	for _, c := range comments {
		rows = append(rows, []string{
			strconv.Itoa(c.ID),
			orDash(c.Author.DisplayName()),
			formatDate(c.CreatedAt),
			c.Text,
		})
	}
	return rows
}

func statsRows(s api.OrderStats) [][]string {
	rows := make([][]string, 0, len(s)+1)
	for _, k := range s.Statuses() {
		label := k
		if k == "null" {
			label = "(no status)"
		}
		rows = append(rows, []string{label, strconv.Itoa(s[k])})
	}
	return append(rows, []string{"total", strconv.Itoa(s.Total())})
}

func userFields(u *api.User) [][]string {
	role := "user"
	switch {
	case u.IsSuperuser:
		role = "admin"
	case u.IsManager:
		role = "manager"
	}
	return [][]string{
		{"id", strconv.Itoa(u.ID)},
		{"email", u.Email},
		{"name", orDash(u.DisplayName())},
		{"role", role},
		{"active", yesNo(u.IsActive)},
		{"orders", strconv.Itoa(u.TotalOrders)},
	}
}

func sessionFields(info SessionInfo, now time.Time) [][]string {
	access := "none"
	if info.HasAccess {
		switch {
		case info.AccessExpiresAt.IsZero():
			access = "unreadable (treated as expired)"
		case !now.Before(info.AccessExpiresAt):
			access = "expired " + formatDuration(now.Sub(info.AccessExpiresAt)) + " ago"
		default:
			access = "expires in " + formatDuration(info.AccessExpiresAt.Sub(now))
			if info.AccessExpiresAt.Sub(now) <= info.Threshold {
				access += " (renewed on next request)"
			}
		}
	}
	refresh := "none"
	if info.HasRefresh {
		refresh = "present"
	}
	return [][]string{
		{"store", info.Store},
		{"signed in", yesNo(info.CanEnter)},
		{"access token", access},
		{"refresh token", refresh},
	}
}

func pageSummary(page, totalPages, totalItems int, noun string) string {
	return fmt.Sprintf("Page %d of %d (%d %s)", page, max(totalPages, 1), totalItems, noun)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// formatDuration formats a duration as "Xh Ym", "Xm Ys" or "Xs".
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
