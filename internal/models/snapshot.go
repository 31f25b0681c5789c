package models

import (
	"fmt"
	"time"
)

// Tab names a notification filter as shown on the notifications page.
type Tab string

const (
	TabAll    Tab = "all"
	TabUnread Tab = "unread"
	TabAlerts Tab = "alerts"
)

// ParseTab maps a query value to a Tab. Unknown values fall back to TabAll.
func ParseTab(s string) Tab {
	switch Tab(s) {
	case TabUnread:
		return TabUnread
	case TabAlerts:
		return TabAlerts
	default:
		return TabAll
	}
}

// Match reports whether n belongs in the tab.
func (t Tab) Match(n Notification) bool {
	switch t {
	case TabUnread:
		return !n.Read
	case TabAlerts:
		return n.IsAlerting()
	default:
		return true
	}
}

// Snapshot is a read-only view of store state at a point in time.
type Snapshot struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
}

// NewSnapshot copies list and derives the unread count from the copy.
func NewSnapshot(list []Notification) Snapshot {
	out := make([]Notification, len(list))
	copy(out, list)
	return Snapshot{
		Notifications: out,
		UnreadCount:   CountUnread(out),
	}
}

// CountUnread returns the number of notifications with Read == false.
func CountUnread(list []Notification) int {
	n := 0
	for i := range list {
		if !list[i].Read {
			n++
		}
	}
	return n
}

// Filter returns the notifications matching tab, newest first.
func (s Snapshot) Filter(tab Tab) []Notification {
	out := make([]Notification, 0, len(s.Notifications))
	for _, n := range s.Notifications {
		if tab.Match(n) {
			out = append(out, n)
		}
	}
	return out
}

// TabCounts holds the badge numbers for each tab.
type TabCounts struct {
	All    int `json:"all"`
	Unread int `json:"unread"`
	Alerts int `json:"alerts"`
}

// Counts computes per-tab counts.
func (s Snapshot) Counts() TabCounts {
	c := TabCounts{All: len(s.Notifications)}
	for _, n := range s.Notifications {
		if !n.Read {
			c.Unread++
		}
		if n.IsAlerting() {
			c.Alerts++
		}
	}
	return c
}

// FormatAge renders how long ago ts was, relative to now: "12m ago",
// "3h ago" or "2d ago".
func FormatAge(ts, now time.Time) string {
	d := now.Sub(ts)
	if d < 0 {
		d = 0
	}

	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
}
