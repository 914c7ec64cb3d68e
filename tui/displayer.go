package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/go-authgate/order-console/api"
	"github.com/go-authgate/order-console/session"
)

// Displayer abstracts all console output. Listings go to the data writer,
// progress and errors to the status writer, so listings can be piped.
//
// The embedded session.Observer methods may be called from several
// goroutines at once.
type Displayer interface {
	session.Observer

	Banner(serverURL string)
	LoginOK(email string)
	LoggedOut()
	SessionState(info SessionInfo)
	SessionExpired()
	Orders(p *api.Page[api.Order])
	OrderStats(s api.OrderStats)
	OrderUpdated(o *api.Order)
	Comments(orderID int, comments []api.Comment)
	Groups(p *api.Page[api.Group])
	Users(p *api.Page[api.User])
	UserInfo(u *api.User)
	Link(label, link string)
	Exported(path string, n int)
	Done(msg string)
	Fatal(err error)
}

// renderer turns status lines and tables into text.
type renderer interface {
	banner(serverURL string) string
	line(kind statusKind, text string) string
	table(headers []string, rows [][]string) string
}

// console implements Displayer on top of a renderer.
type console struct {
	mu     sync.Mutex
	data   io.Writer
	status io.Writer
	r      renderer
	now    func() time.Time
}

func (c *console) say(kind statusKind, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.status, c.r.line(kind, fmt.Sprintf(format, args...)))
}

func (c *console) print(headers []string, rows [][]string, summary string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.data, c.r.table(headers, rows))
	if summary != "" {
		fmt.Fprintln(c.status, c.r.line(statusInfo, summary))
	}
}

func (c *console) Banner(serverURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.status, c.r.banner(serverURL))
}

func (c *console) Refreshing() {
	c.say(statusInfo, "Refreshing access token...")
}

func (c *console) RefreshOK() {
	c.say(statusOK, "Token refreshed successfully")
}

func (c *console) RefreshFailed(err error) {
	c.say(statusWarn, "Refresh failed: %v", err)
}

func (c *console) AccessTokenRejected() {
	c.say(statusWarn, "Access token rejected (401)")
}

func (c *console) TokenRefreshedRetrying() {
	c.say(statusOK, "Session restored, retrying request...")
}

func (c *console) LoginOK(email string) {
	c.say(statusOK, "Logged in as %s", email)
}

func (c *console) LoggedOut() {
	c.say(statusOK, "Logged out")
}

func (c *console) SessionState(info SessionInfo) {
	c.print(fieldHeaders, sessionFields(info, c.now()), "")
}

func (c *console) SessionExpired() {
	c.say(statusWarn, "Session expired. Run 'order-console login' to sign in again.")
}

func (c *console) Orders(p *api.Page[api.Order]) {
	c.print(orderHeaders, orderRows(p.Data), pageSummary(p.Page, p.TotalPages, p.TotalItems, "orders"))
}

func (c *console) OrderStats(s api.OrderStats) {
	c.print(statsHeaders, statsRows(s), "")
}

func (c *console) OrderUpdated(o *api.Order) {
	c.say(statusOK, "Order %d updated (status: %s)", o.ID, orDash(o.Status))
}

func (c *console) Comments(orderID int, comments []api.Comment) {
	c.print(commentHeaders, commentRows(comments), fmt.Sprintf("%d comments on order %d", len(comments), orderID))
}

func (c *console) Groups(p *api.Page[api.Group]) {
	c.print(groupHeaders, groupRows(p.Data), pageSummary(p.Page, p.TotalPages, p.TotalItems, "groups"))
}

func (c *console) Users(p *api.Page[api.User]) {
	c.print(userHeaders, userRows(p.Data), pageSummary(p.Page, p.TotalPages, p.TotalItems, "users"))
}

func (c *console) UserInfo(u *api.User) {
	c.print(fieldHeaders, userFields(u), "")
}

func (c *console) Link(label, link string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.status, c.r.line(statusOK, label))
	fmt.Fprintln(c.data, link)
}

func (c *console) Exported(path string, n int) {
	c.say(statusOK, "Exported %d orders to %s", n, path)
}

func (c *console) Done(msg string) {
	c.say(statusOK, "%s", msg)
}

func (c *console) Fatal(err error) {
	c.say(statusErr, "Error: %v", err)
}

// PlainDisplayer writes plain text. Used when stderr is not a TTY (pipes, CI,
// SSH without pty).
type PlainDisplayer struct {
	console
}

// NewPlainDisplayer creates a PlainDisplayer writing listings to data and
// progress to status.
func NewPlainDisplayer(data, status io.Writer) *PlainDisplayer {
	return &PlainDisplayer{console{data: data, status: status, r: plainRenderer{}, now: time.Now}}
}

type plainRenderer struct{}

func (plainRenderer) banner(serverURL string) string {
	return fmt.Sprintf("=== Order Console (%s) ===\n", serverURL)
}

func (plainRenderer) line(_ statusKind, text string) string {
	return text
}

func (plainRenderer) table(headers []string, rows [][]string) string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
	return b.String()
}

// StyledDisplayer renders with lipgloss styles, for interactive terminals.
type StyledDisplayer struct {
	console
}

// NewStyledDisplayer creates a StyledDisplayer writing listings to data and
// progress to status.
func NewStyledDisplayer(data, status io.Writer) *StyledDisplayer {
	return &StyledDisplayer{console{data: data, status: status, r: styledRenderer{}, now: time.Now}}
}

type styledRenderer struct{}

func (styledRenderer) banner(serverURL string) string {
	return "\n" + styleTitleBox.Render("  Order Console  ") + "\n" + styleDim.Render("  "+serverURL) + "\n"
}

func (styledRenderer) line(kind statusKind, text string) string {
	switch kind {
	case statusOK:
		return styleOK.Render("  ✓ " + text)
	case statusWarn:
		return styleWarn.Render("  ⚠ " + text)
	case statusErr:
		return styleErr.Render("  ✗ " + text)
	default:
		return styleDim.Render("  · " + text)
	}
}

func (styledRenderer) table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleDim).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleBold.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	return t.String() + "\n"
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Refreshing()                     {}
func (NoopDisplayer) RefreshOK()                      {}
func (NoopDisplayer) RefreshFailed(_ error)           {}
func (NoopDisplayer) AccessTokenRejected()            {}
func (NoopDisplayer) TokenRefreshedRetrying()         {}
func (NoopDisplayer) Banner(_ string)                 {}
func (NoopDisplayer) LoginOK(_ string)                {}
func (NoopDisplayer) LoggedOut()                      {}
func (NoopDisplayer) SessionState(_ SessionInfo)      {}
func (NoopDisplayer) SessionExpired()                 {}
func (NoopDisplayer) Orders(_ *api.Page[api.Order])   {}
func (NoopDisplayer) OrderStats(_ api.OrderStats)     {}
func (NoopDisplayer) OrderUpdated(_ *api.Order)       {}
func (NoopDisplayer) Comments(_ int, _ []api.Comment) {}
func (NoopDisplayer) Groups(_ *api.Page[api.Group])   {}
func (NoopDisplayer) Users(_ *api.Page[api.User])     {}
func (NoopDisplayer) UserInfo(_ *api.User)            {}
func (NoopDisplayer) Link(_, _ string)                {}
func (NoopDisplayer) Exported(_ string, _ int)        {}
func (NoopDisplayer) Done(_ string)                   {}
func (NoopDisplayer) Fatal(_ error)                   {}
