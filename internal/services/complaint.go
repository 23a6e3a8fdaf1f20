package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hazardwatch/apiserver/internal/access"
	"github.com/hazardwatch/apiserver/internal/metrics"
	"github.com/hazardwatch/apiserver/internal/session"
	"github.com/hazardwatch/apiserver/internal/store"
	"github.com/hazardwatch/apiserver/internal/urgency"
	"github.com/hazardwatch/apiserver/types"
)

const maxDescriptionLength = 4000

// ComplaintRepository defines persistence operations for complaints.
type ComplaintRepository interface {
	List(ctx context.Context, filter store.ComplaintFilter) ([]types.Complaint, error)
	Get(ctx context.Context, id uuid.UUID) (types.Complaint, error)
	Create(ctx context.Context, complaint types.Complaint) (types.Complaint, error)
	Update(ctx context.Context, complaint types.Complaint) (types.Complaint, error)
}

// EventPublisher announces complaint changes so cached views can refetch.
type EventPublisher interface {
	Publish(ctx context.Context, event types.ComplaintEvent) error
}

// SubmissionLimiter caps how often one user may file complaints. Allow
// checks the quota without spending it; Record spends one unit.
type SubmissionLimiter interface {
	Allow(ctx context.Context, userID uuid.UUID) (bool, error)
	Record(ctx context.Context, userID uuid.UUID) error
}

// CreateComplaintInput holds the raw fields of a new complaint.
type CreateComplaintInput struct {
	Category    string
	Description string
	ImageURL    string
	Latitude    *float64
	Longitude   *float64
	Address     *string
}

// ComplaintPatch lists the fields a transition may change. Nil leaves a
// field untouched.
type ComplaintPatch struct {
	Status     *string
	AdminNotes *string
}

// AdminListing is the department view of complaints.
type AdminListing struct {
	Scope      types.Scope           `json:"scope"`
	Category   *types.Category       `json:"category,omitempty"`
	Complaints []types.ComplaintView `json:"complaints"`
	Summary    urgency.Summary       `json:"summary"`
}

// ComplaintService encapsulates the complaint lifecycle.
type ComplaintService struct {
	repo       ComplaintRepository
	events     EventPublisher
	limiter    SubmissionLimiter
	classifier *urgency.Classifier
	logger     *slog.Logger
	now        func() time.Time
}

// NewComplaintService wires the lifecycle. events and limiter may be nil.
func NewComplaintService(
	repo ComplaintRepository,
	events EventPublisher,
	limiter SubmissionLimiter,
	classifier *urgency.Classifier,
	logger *slog.Logger,
) *ComplaintService {
	if classifier == nil {
		classifier = urgency.NewClassifier(urgency.DefaultOverdueAfter)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ComplaintService{
		repo:       repo,
		events:     events,
		limiter:    limiter,
		classifier: classifier,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create files a new complaint owned by actor. Status always starts as
// pending whatever the caller supplied. Only stored complaints count
// against the submission quota.
func (s *ComplaintService) Create(ctx context.Context, actor session.Snapshot, in CreateComplaintInput) (types.ComplaintView, error) {
	if !actor.Authenticated() {
		return types.ComplaintView{}, ErrUnauthenticated
	}

	complaint, err := validateComplaint(in)
	if err != nil {
		return types.ComplaintView{}, err
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, actor.Identity.UserID)
		if err != nil {
			s.logger.Warn("submission limiter unavailable, allowing complaint",
				"user_id", actor.Identity.UserID, "error", err)
		} else if !allowed {
			metrics.RecordRateLimited()
			return types.ComplaintView{}, ErrRateLimited
		}
	}

	complaint.UserID = actor.Identity.UserID
	complaint.Status = types.StatusPending
	complaint.AdminNotes = nil
	complaint.ResolvedAt = nil
	complaint.CreatedAt = s.now()

	created, err := s.repo.Create(ctx, complaint)
	if err != nil {
		return types.ComplaintView{}, wrapStore("create complaint", err)
	}

	if s.limiter != nil {
		if err := s.limiter.Record(ctx, actor.Identity.UserID); err != nil {
			s.logger.Warn("submission limiter unavailable, complaint not counted",
				"user_id", actor.Identity.UserID, "complaint_id", created.ID, "error", err)
		}
	}

	metrics.RecordComplaintCreated(string(created.Category))
	s.publish(ctx, types.ComplaintEvent{
		Type:        types.ComplaintCreated,
		ComplaintID: created.ID,
		Category:    created.Category,
		Status:      created.Status,
		ActorID:     actor.Identity.UserID,
		OccurredAt:  created.CreatedAt,
	})

	return s.view(created), nil
}

func validateComplaint(in CreateComplaintInput) (types.Complaint, error) {
	verr := &ValidationError{}

	category, err := types.ParseCategory(strings.TrimSpace(in.Category))
	if err != nil {
		verr.add("category", "must be one of roads, waste, electricity")
	}

	description := strings.TrimSpace(in.Description)
	switch {
	case description == "":
		verr.add("description", "is required")
	case len(description) > maxDescriptionLength:
		verr.add("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLength))
	}

	imageURL := strings.TrimSpace(in.ImageURL)
	if imageURL == "" {
		verr.add("image_url", "is required")
	}

	if in.Latitude == nil {
		verr.add("latitude", "is required")
	} else if *in.Latitude < -90 || *in.Latitude > 90 {
		verr.add("latitude", "must be between -90 and 90")
	}
	if in.Longitude == nil {
		verr.add("longitude", "is required")
	} else if *in.Longitude < -180 || *in.Longitude > 180 {
		verr.add("longitude", "must be between -180 and 180")
	}

	if err := verr.orNil(); err != nil {
		return types.Complaint{}, err
	}

	complaint := types.Complaint{
		Category:    category,
		Description: description,
		ImageURL:    imageURL,
		Latitude:    *in.Latitude,
		Longitude:   *in.Longitude,
	}
	if in.Address != nil {
		if address := strings.TrimSpace(*in.Address); address != "" {
			complaint.Address = &address
		}
	}
	return complaint, nil
}

// ListMine returns the actor's own complaints, newest first.
func (s *ComplaintService) ListMine(ctx context.Context, actor session.Snapshot) ([]types.ComplaintView, error) {
	if !actor.Authenticated() {
		return nil, ErrUnauthenticated
	}
	owner := actor.Identity.UserID
	complaints, err := s.repo.List(ctx, store.ComplaintFilter{OwnerID: &owner})
	if err != nil {
		return nil, wrapStore("list complaints", err)
	}
	return s.classifier.Annotate(complaints), nil
}

// ListForAdmin returns the complaints actor administers. A scoped admin
// without a filter sees only their own category.
func (s *ComplaintService) ListForAdmin(ctx context.Context, actor session.Snapshot, category *types.Category) (AdminListing, error) {
	if err := requireReady(actor); err != nil {
		return AdminListing{}, err
	}

	filter, ok := access.ListFilter(actor.Scope, category)
	metrics.RecordAuthorizationDecision("list", ok)
	if !ok {
		return AdminListing{}, ErrForbidden
	}

	complaints, err := s.repo.List(ctx, store.ComplaintFilter{Category: filter})
	if err != nil {
		return AdminListing{}, wrapStore("list complaints", err)
	}

	views := s.classifier.Annotate(complaints)
	return AdminListing{
		Scope:      actor.Scope,
		Category:   filter,
		Complaints: views,
		Summary:    urgency.Summarize(views),
	}, nil
}

// Get returns one complaint to its owner or to an admin covering it.
func (s *ComplaintService) Get(ctx context.Context, actor session.Snapshot, id uuid.UUID) (types.ComplaintView, error) {
	if !actor.Authenticated() {
		return types.ComplaintView{}, ErrUnauthenticated
	}
	complaint, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.ComplaintView{}, wrapStore("get complaint", err)
	}
	if complaint.UserID != actor.Identity.UserID && !actor.CanMutate(complaint.Category) {
		return types.ComplaintView{}, ErrForbidden
	}
	return s.view(complaint), nil
}

// Transition applies patch to the complaint. Any status may follow any
// other. The write is a single statement so a failure leaves the stored
// complaint unchanged.
func (s *ComplaintService) Transition(ctx context.Context, actor session.Snapshot, id uuid.UUID, patch ComplaintPatch) (types.ComplaintView, error) {
	if err := requireReady(actor); err != nil {
		return types.ComplaintView{}, err
	}

	status, err := validatePatch(patch)
	if err != nil {
		return types.ComplaintView{}, err
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.ComplaintView{}, wrapStore("get complaint", err)
	}

	allowed := actor.CanMutate(current.Category)
	metrics.RecordAuthorizationDecision("mutate", allowed)
	if !allowed {
		return types.ComplaintView{}, ErrForbidden
	}

	next := applyTransition(current, status, patch.AdminNotes, s.now())
	updated, err := s.repo.Update(ctx, next)
	if err != nil {
		return types.ComplaintView{}, wrapStore("update complaint", err)
	}

	event := types.ComplaintEvent{
		Type:        types.ComplaintUpdated,
		ComplaintID: updated.ID,
		Category:    updated.Category,
		Status:      updated.Status,
		ActorID:     actor.Identity.UserID,
		OccurredAt:  updated.UpdatedAt,
	}
	if current.Status != updated.Status {
		metrics.RecordStatusChange(string(updated.Category), string(current.Status), string(updated.Status))
		event.Type = types.ComplaintStatusChanged
		event.PrevStatus = current.Status
	}
	s.publish(ctx, event)

	s.logger.Info("complaint updated",
		"complaint_id", updated.ID,
		"category", updated.Category,
		"from", current.Status,
		"to", updated.Status,
		"actor_id", actor.Identity.UserID)

	return s.view(updated), nil
}

func validatePatch(patch ComplaintPatch) (*types.Status, error) {
	if patch.Status == nil && patch.AdminNotes == nil {
		verr := &ValidationError{}
		verr.add("status", "status or admin_notes is required")
		return nil, verr
	}
	if patch.Status == nil {
		return nil, nil
	}
	status, err := types.ParseStatus(strings.TrimSpace(*patch.Status))
	if err != nil {
		verr := &ValidationError{}
		verr.add("status", "must be one of pending, in_progress, resolved")
		return nil, fmt.Errorf("%w: %w", ErrInvalidStatus, verr)
	}
	return &status, nil
}

// applyTransition returns c with the patch applied at now. Resolving
// stamps ResolvedAt, overwriting any earlier stamp. Moving away from
// resolved keeps the old stamp. Notes change only when given and are stored as given.
func applyTransition(c types.Complaint, status *types.Status, notes *string, now time.Time) types.Complaint {
	if status != nil {
		c.Status = *status
		if *status == types.StatusResolved {
			resolvedAt := now
			c.ResolvedAt = &resolvedAt
		}
	}
	if notes != nil {
		given := *notes
		c.AdminNotes = &given
	}
	c.UpdatedAt = now
	return c
}

func requireReady(actor session.Snapshot) error {
	switch actor.State {
	case session.Absent:
		return ErrUnauthenticated
	case session.Loading:
		return ErrRolesPending
	}
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	return nil
}

func (s *ComplaintService) view(c types.Complaint) types.ComplaintView {
	views := s.classifier.Annotate([]types.Complaint{c})
	return views[0]
}

// publish hands event to the queue. The change is already committed, so
// a failure is logged and not returned.
func (s *ComplaintService) publish(ctx context.Context, event types.ComplaintEvent) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, event)
	metrics.RecordEventPublished(string(event.Type), err)
	if err != nil {
		s.logger.Error("publish complaint event failed",
			"type", event.Type, "complaint_id", event.ComplaintID, "error", err)
	}
}
