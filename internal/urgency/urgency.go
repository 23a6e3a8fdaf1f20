// Package urgency flags complaints that have waited too long for a fix.
package urgency

import (
	"time"

	"github.com/hazardwatch/apiserver/types"
)

// DefaultOverdueAfter is how long an unresolved complaint may wait before
// it is critical.
const DefaultOverdueAfter = 48 * time.Hour

// Classify returns the urgency of c at instant now using the default threshold.
func Classify(c types.Complaint, now time.Time) types.Urgency {
	return classify(c, now, DefaultOverdueAfter)
}

func classify(c types.Complaint, now time.Time, overdueAfter time.Duration) types.Urgency {
	if c.Status == types.StatusResolved {
		return types.UrgencyNone
	}
	if now.Sub(c.CreatedAt) >= overdueAfter {
		return types.UrgencyCritical
	}
	return types.UrgencyNone
}

// Classifier annotates complaints for list views. It holds no state other
// than its threshold and clock.
type Classifier struct {
	overdueAfter time.Duration
	now          func() time.Time
}

// NewClassifier returns a Classifier. A non-positive threshold selects
// DefaultOverdueAfter.
func NewClassifier(overdueAfter time.Duration) *Classifier {
	if overdueAfter <= 0 {
		overdueAfter = DefaultOverdueAfter
	}
	return &Classifier{overdueAfter: overdueAfter, now: time.Now}
}

// WithClock returns a copy of the classifier reading time from now.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	return &Classifier{overdueAfter: c.overdueAfter, now: now}
}

// Classify returns the urgency of complaint at the current instant.
func (c *Classifier) Classify(complaint types.Complaint) types.Urgency {
	return classify(complaint, c.now(), c.overdueAfter)
}

// Annotate returns display views for complaints, preserving order. Every
// view is classified against the same instant.
func (c *Classifier) Annotate(complaints []types.Complaint) []types.ComplaintView {
	now := c.now()
	views := make([]types.ComplaintView, 0, len(complaints))
	for _, complaint := range complaints {
		views = append(views, types.ComplaintView{
			Complaint:     complaint,
			Urgency:       classify(complaint, now, c.overdueAfter),
			CategoryLabel: complaint.Category.Label(),
			StatusLabel:   complaint.Status.Label(),
			MapURL:        complaint.MapURL(),
		})
	}
	return views
}

// Summary holds the counters shown above an admin list.
type Summary struct {
	Total      int                    `json:"total"`
	Overdue    int                    `json:"overdue"`
	ByCategory map[types.Category]int `json:"by_category"`
	ByStatus   map[types.Status]int   `json:"by_status"`
}

// Summarize counts annotated views.
func Summarize(views []types.ComplaintView) Summary {
	summary := Summary{
		Total:      len(views),
		ByCategory: make(map[types.Category]int, len(types.Categories)),
		ByStatus:   make(map[types.Status]int, 3),
	}
	for _, category := range types.Categories {
		summary.ByCategory[category] = 0
	}
	for _, view := range views {
		if view.Urgency == types.UrgencyCritical {
			summary.Overdue++
		}
		summary.ByCategory[view.Category]++
		summary.ByStatus[view.Status]++
	}
	return summary
}
