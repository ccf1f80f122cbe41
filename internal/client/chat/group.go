package chat

import (
	"sort"
	"strings"
	"time"

	model "github.com/mri-lab/mri-console/internal/model/chat"
)

// 分组标签，按显示顺序排列。
const (
	GroupToday     = "今天"
	GroupYesterday = "昨天"
	GroupWeek      = "7天内"
	GroupOlder     = "更早"
)

var groupOrder = []string{GroupToday, GroupYesterday, GroupWeek, GroupOlder}

// Group is one date bucket of the history list.
type Group struct {
	Label string
	Items []model.History
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Bucket returns the group label of updatedAt relative to now, comparing
// local calendar days. Days after today land in the 7-day group.
func Bucket(updatedAt, now time.Time) string {
	today := midnight(now)
	day := midnight(updatedAt.In(now.Location()))

	switch {
	case day.Equal(today):
		return GroupToday
	case day.After(today):
		return GroupWeek
	case day.Equal(today.AddDate(0, 0, -1)):
		return GroupYesterday
	case !day.Before(today.AddDate(0, 0, -7)):
		return GroupWeek
	default:
		return GroupOlder
	}
}

// GroupHistories buckets histories by date. Items are newest first, empty
// groups are dropped and the group order is fixed.
func GroupHistories(histories []model.History, now time.Time) []Group {
	buckets := make(map[string][]model.History, len(groupOrder))
	for _, h := range histories {
		label := Bucket(h.UpdatedAt, now)
		buckets[label] = append(buckets[label], h)
	}

	var out []Group
	for _, label := range groupOrder {
		items := buckets[label]
		if len(items) == 0 {
			continue
		}
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		})
		out = append(out, Group{Label: label, Items: items})
	}
	return out
}

// Filter keeps histories whose title contains query, ignoring case. A blank
// query keeps everything.
func Filter(histories []model.History, query string) []model.History {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return append([]model.History(nil), histories...)
	}
	var out []model.History
	for _, h := range histories {
		if strings.Contains(strings.ToLower(h.Title), query) {
			out = append(out, h)
		}
	}
	return out
}
