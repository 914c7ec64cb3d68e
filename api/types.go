package api

import (
	"net/url"
	"sort"
	"strconv"
	"time"
)

// Profile is the personal part of a User.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Age       int    `json:"age,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

// User is a console account.
type User struct {
	ID             int       `json:"id"`
	Email          string    `json:"email"`
	Username       string    `json:"username"`
	IsManager      bool      `json:"is_manager"`
	IsActive       bool      `json:"is_active"`
	IsStaff        bool      `json:"is_staff"`
	IsSuperuser    bool      `json:"is_superuser"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Profile        *Profile  `json:"profile,omitempty"`
	TotalOrders    int       `json:"total_orders"`
	OrdersNew      int       `json:"orders_new"`
	OrdersInWork   int       `json:"orders_in_work"`
	OrdersAgree    int       `json:"orders_agree"`
	OrdersDisagree int       `json:"orders_disagree"`
	OrdersDubbing  int       `json:"orders_dubbing"`
}

// DisplayName is "First Last" when the profile has one, else the email.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Profile != nil && u.Profile.FirstName != "" {
		if u.Profile.LastName == "" {
			return u.Profile.FirstName
		}
		return u.Profile.FirstName + " " + u.Profile.LastName
	}
	return u.Email
}

// Group is a named study group orders can be assigned to.
type Group struct {
	ID        int    `json:"id"`
	GroupName string `json:"group_name"`
}

// Comment is a manager's note on an order.
type Comment struct {
	ID        int       `json:"id"`
	Order     int       `json:"order"`
	Author    *User     `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Order is an application for a course.
type Order struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Surname      string    `json:"surname"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Age          int       `json:"age"`
	Course       string    `json:"course"`
	CourseFormat string    `json:"course_format"`
	CourseType   string    `json:"course_type"`
	Sum          int       `json:"sum"`
	AlreadyPaid  int       `json:"alreadyPaid"`
	CreatedAt    time.Time `json:"created_at"`
	UTM          string    `json:"utm"`
	Msg          string    `json:"msg"`
	Status       string    `json:"status"`
	Manager      *User     `json:"manager"`
	Group        *Group    `json:"group"`
	Comments     []Comment `json:"comments"`
}

// OrderUpdate holds the fields to change on an order. Nil fields are left
// untouched.
type OrderUpdate struct {
	Name         *string `json:"name,omitempty"`
	Surname      *string `json:"surname,omitempty"`
	Email        *string `json:"email,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Age          *int    `json:"age,omitempty"`
	Course       *string `json:"course,omitempty"`
	CourseFormat *string `json:"course_format,omitempty"`
	CourseType   *string `json:"course_type,omitempty"`
	Sum          *int    `json:"sum,omitempty"`
	AlreadyPaid  *int    `json:"alreadyPaid,omitempty"`
	Status       *string `json:"status,omitempty"`
	GroupID      *int    `json:"group_id,omitempty"`
}

// IsEmpty reports whether no field is set.
func (u OrderUpdate) IsEmpty() bool {
	return u == OrderUpdate{}
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Page       int  `json:"page"`
	TotalItems int  `json:"total_items"`
	TotalPages int  `json:"total_pages"`
	Prev       bool `json:"prev"`
	Next       bool `json:"next"`
	Data       []T  `json:"data"`
}

// OrderStats counts orders per status. The "total" key holds the overall
// count and "null" the orders without a status.
type OrderStats map[string]int

// Total returns the overall order count.
func (s OrderStats) Total() int {
	return s["total"]
}

// Statuses returns the per-status keys in a stable order.
func (s OrderStats) Statuses() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		if k != "total" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// FilterKeys are the order listing filters the backend understands.
var FilterKeys = []string{
	"course",
	"course_format",
	"course_type",
	"status",
	"name",
	"surname",
	"phone",
	"email",
	"group",
	"age",
	"alreadyPaid",
	"sum",
	"created_at_after",
	"created_at_before",
	"my",
}

// IsFilterKey reports whether key is one of FilterKeys.
func IsFilterKey(key string) bool {
	for _, k := range FilterKeys {
		if k == key {
			return true
		}
	}
	return false
}

// OrderQuery selects a page of orders. Order is a field name, prefixed with
// "-" for descending.
type OrderQuery struct {
	Page    int
	Order   string
	Filters map[string]string
}

// Values encodes the query. Empty filters are dropped.
func (q OrderQuery) Values() url.Values {
	v := url.Values{}
	page := q.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	for k, val := range q.Filters {
		if val != "" {
			v.Set(k, val)
		}
	}
	return v
}

// ManagerRequest creates a manager account.
type ManagerRequest struct {
	Email   string  `json:"email"`
	Profile Profile `json:"profile"`
}
