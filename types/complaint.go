package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Category identifies the department responsible for a complaint.
type Category string

// Supported complaint categories.
const (
	CategoryRoads       Category = "roads"
	CategoryWaste       Category = "waste"
	CategoryElectricity Category = "electricity"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryRoads, CategoryWaste, CategoryElectricity}

// ParseCategory converts a request value into a Category.
func ParseCategory(raw string) (Category, error) {
	category := Category(raw)
	if !category.Valid() {
		return "", fmt.Errorf("unknown category %q", raw)
	}
	return category, nil
}

// Valid reports whether c is a supported category.
func (c Category) Valid() bool {
	switch c {
	case CategoryRoads, CategoryWaste, CategoryElectricity:
		return true
	default:
		return false
	}
}

// Label returns the human-readable department label.
func (c Category) Label() string {
	switch c {
	case CategoryRoads:
		return "Roads & Potholes"
	case CategoryWaste:
		return "Waste & Garbage"
	case CategoryElectricity:
		return "Streetlights & Electricity"
	default:
		return string(c)
	}
}

// Scope returns the admin scope that covers this category.
func (c Category) Scope() Scope {
	switch c {
	case CategoryRoads:
		return ScopeRoads
	case CategoryWaste:
		return ScopeWaste
	case CategoryElectricity:
		return ScopeElectricity
	default:
		return ScopeNone
	}
}

// Status is the lifecycle state of a complaint.
type Status string

// Supported statuses. StatusPending is the initial state.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

// ParseStatus converts a request value into a Status.
func ParseStatus(raw string) (Status, error) {
	status := Status(raw)
	if !status.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return status, nil
}

// Valid reports whether s is a supported status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved:
		return true
	default:
		return false
	}
}

// Label returns the human-readable status label.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "In Progress"
	case StatusResolved:
		return "Resolved"
	default:
		return string(s)
	}
}

// Complaint is a hazard report submitted by a resident.
type Complaint struct {
	// ID is the unique identifier of the complaint.
	ID uuid.UUID `json:"id" db:"id"`

	// UserID identifies the reporting user. Immutable after creation.
	UserID uuid.UUID `json:"user_id" db:"user_id"`

	// Category routes the complaint to a department. Immutable after creation.
	Category Category `json:"category" db:"category"`

	// Description is the resident's free-text account of the hazard.
	Description string `json:"description" db:"description"`

	// ImageURL references the uploaded photo of the hazard.
	ImageURL string `json:"image_url" db:"image_url"`

	// Latitude and Longitude locate the hazard.
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`

	// Address is an optional human-readable location.
	Address *string `json:"address" db:"address"`

	// Status is the current lifecycle state.
	Status Status `json:"status" db:"status"`

	// AdminNotes is an optional note left by department staff.
	AdminNotes *string `json:"admin_notes" db:"admin_notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// ResolvedAt is stamped each time the status is set to resolved.
	ResolvedAt *time.Time `json:"resolved_at" db:"resolved_at"`
}

// MapURL returns a link that opens the complaint location on a map.
func (c Complaint) MapURL() string {
	return fmt.Sprintf("https://maps.google.com/?q=%v,%v", c.Latitude, c.Longitude)
}

// Urgency is the transient priority derived from a complaint's age.
type Urgency string

const (
	UrgencyNone     Urgency = "none"
	UrgencyCritical Urgency = "critical"
)

// ComplaintView is a complaint annotated for display. The urgency is
// computed at read time and never stored.
type ComplaintView struct {
	Complaint
	Urgency       Urgency `json:"urgency"`
	CategoryLabel string  `json:"category_label"`
	StatusLabel   string  `json:"status_label"`
	MapURL        string  `json:"map_url"`
}

// ComplaintEventType names a change published for complaint consumers.
type ComplaintEventType string

const (
	ComplaintCreated       ComplaintEventType = "complaint.created"
	ComplaintStatusChanged ComplaintEventType = "complaint.status_changed"
	ComplaintUpdated       ComplaintEventType = "complaint.updated"
)

// ComplaintEvent tells downstream views that a complaint changed and
// cached copies must be refetched.
type ComplaintEvent struct {
	Type        ComplaintEventType `json:"type"`
	ComplaintID uuid.UUID          `json:"complaint_id"`
	Category    Category           `json:"category"`
	Status      Status             `json:"status"`
	PrevStatus  Status             `json:"prev_status,omitempty"`
	ActorID     uuid.UUID          `json:"actor_id"`
	OccurredAt  time.Time          `json:"occurred_at"`
}
