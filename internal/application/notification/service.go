package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/school-api-nosql/internal/domain"
	"github.com/school-api-nosql/internal/pkg/id"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldTitle       = "title"
	fieldContent     = "content"
	fieldScheduledAt = "scheduled_at"
	fieldStatus      = "status"
	fieldType        = "type"
	fieldUpdatedAt   = "updated_at"
)

// defaultRecentLimit is used when a recent-per-class query asks for no
// particular limit.
const defaultRecentLimit = 5

type Service interface {
	Create(ctx context.Context, req domain.CreateNotificationRequest, authorID string) (*domain.Notification, error)
	Update(ctx context.Context, notificationID string, req domain.UpdateNotificationRequest, requesterID string) (*domain.Notification, error)
	Delete(ctx context.Context, notificationID, requesterID string) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]domain.Notification, error)
	FeedForStudent(ctx context.Context, studentID string) ([]domain.Notification, error)
	RecentForClass(ctx context.Context, classID string, limit int) ([]domain.Notification, error)
	Statistics(ctx context.Context, teacherID string) (*domain.NotificationStatistics, error)
	SweepExpired(ctx context.Context, now time.Time) (*domain.SweepResult, error)
	Upcoming(ctx context.Context, now time.Time) ([]domain.Notification, error)
}

type notificationStore interface {
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	Update(ctx context.Context, notificationID string, updates map[string]interface{}) error
	ListByTeacher(ctx context.Context, teacherID string) ([]domain.Notification, error)
	ListByTeacherAndStatus(ctx context.Context, teacherID, status string) ([]domain.Notification, error)
	CountByTeacher(ctx context.Context, teacherID string) (int, error)
	ListActiveScheduledBefore(ctx context.Context, now time.Time) ([]domain.Notification, error)
	ListActiveScheduledAfter(ctx context.Context, now time.Time) ([]domain.Notification, error)
	MarkExpired(ctx context.Context, notificationID string, now time.Time) error
}

type targetStore interface {
	CreateNotification(ctx context.Context, n *domain.Notification, targets []domain.NotificationTarget) error
	ReplaceForNotification(ctx context.Context, notificationID string, targets []domain.NotificationTarget, updates map[string]interface{}) error
	DeleteNotification(ctx context.Context, notificationID string) error
	ListByClassIDs(ctx context.Context, classIDs []string) ([]domain.NotificationTarget, error)
	ListRecentByClass(ctx context.Context, classID string, limit int) ([]domain.NotificationTarget, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type classStore interface {
	Get(ctx context.Context, classID string) (*domain.Class, error)
}

type membershipStore interface {
	ClassIDsForStudent(ctx context.Context, studentID string) ([]string, error)
}

type service struct {
	store   notificationStore
	targets targetStore
	users   userStore
	classes classStore
	members membershipStore
}

type ServiceDeps struct {
	NotificationRepo notificationStore
	TargetRepo       targetStore
	UserRepo         userStore
	ClassRepo        classStore
	MembershipRepo   membershipStore
}

func NewService(deps ServiceDeps) Service {
	return &service{
		store:   deps.NotificationRepo,
		targets: deps.TargetRepo,
		users:   deps.UserRepo,
		classes: deps.ClassRepo,
		members: deps.MembershipRepo,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateNotificationRequest, authorID string) (*domain.Notification, error) {
	author, err := s.users.Get(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if author.Role != domain.RoleTeacher {
		return nil, fmt.Errorf("only teachers may author notifications: %w", domain.ErrForbidden)
	}
	if req.Title == "" || req.Content == "" {
		return nil, fmt.Errorf("title and content are required: %w", domain.ErrBadRequest)
	}
	if req.Type != nil && !domain.ValidType(*req.Type) {
		return nil, fmt.Errorf("invalid notification type %q: %w", *req.Type, domain.ErrBadRequest)
	}
	if len(req.ClassIDs) == 0 {
		return nil, fmt.Errorf("at least one target class is required: %w", domain.ErrBadRequest)
	}
	classIDs, err := s.validateTargetClasses(ctx, req.ClassIDs, authorID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	n := &domain.Notification{
		NotificationID: id.New(),
		TeacherID:      authorID,
		Title:          req.Title,
		Content:        req.Content,
		Status:         domain.StatusActive,
		Type:           domain.TypeOther,
		ScheduledAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Type != nil {
		n.Type = *req.Type
	}
	if req.ScheduledAt != nil {
		n.ScheduledAt = req.ScheduledAt.UTC()
	}

	if err := s.targets.CreateNotification(ctx, n, buildTargets(n, classIDs, now)); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *service) Update(ctx context.Context, notificationID string, req domain.UpdateNotificationRequest, requesterID string) (*domain.Notification, error) {
	existing, err := s.store.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if existing.TeacherID != requesterID {
		return nil, fmt.Errorf("only the author may edit a notification: %w", domain.ErrForbidden)
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		if *req.Title == "" {
			return nil, fmt.Errorf("title cannot be empty: %w", domain.ErrBadRequest)
		}
		updates[fieldTitle] = *req.Title
	}
	if req.Content != nil {
		if *req.Content == "" {
			return nil, fmt.Errorf("content cannot be empty: %w", domain.ErrBadRequest)
		}
		updates[fieldContent] = *req.Content
	}
	if req.ScheduledAt != nil {
		updates[fieldScheduledAt] = req.ScheduledAt.UTC()
	}
	if req.Status != nil {
		if !domain.ValidStatus(*req.Status) {
			return nil, fmt.Errorf("invalid notification status %q: %w", *req.Status, domain.ErrBadRequest)
		}
		updates[fieldStatus] = *req.Status
	}
	if req.Type != nil {
		if !domain.ValidType(*req.Type) {
			return nil, fmt.Errorf("invalid notification type %q: %w", *req.Type, domain.ErrBadRequest)
		}
		updates[fieldType] = *req.Type
	}
	if len(updates) == 0 && req.ClassIDs == nil {
		return existing, nil
	}
	updates[fieldUpdatedAt] = time.Now().UTC()

	// A non-nil class list — even an empty one — replaces the full target
	// set; nil leaves the existing targets untouched.
	if req.ClassIDs != nil {
		classIDs, err := s.validateTargetClasses(ctx, req.ClassIDs, requesterID)
		if err != nil {
			return nil, err
		}
		targets := buildTargets(existing, classIDs, time.Now().UTC())
		if err := s.targets.ReplaceForNotification(ctx, notificationID, targets, updates); err != nil {
			return nil, err
		}
	} else if err := s.store.Update(ctx, notificationID, updates); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, notificationID)
}

func (s *service) Delete(ctx context.Context, notificationID, requesterID string) error {
	existing, err := s.store.Get(ctx, notificationID)
	if err != nil {
		return err
	}
	if existing.TeacherID != requesterID {
		return fmt.Errorf("only the author may delete a notification: %w", domain.ErrForbidden)
	}
	return s.targets.DeleteNotification(ctx, notificationID)
}

func (s *service) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	return s.store.Get(ctx, notificationID)
}

func (s *service) ListByTeacher(ctx context.Context, teacherID string) ([]domain.Notification, error) {
	if _, err := s.users.Get(ctx, teacherID); err != nil {
		return nil, err
	}
	return s.store.ListByTeacher(ctx, teacherID)
}

// FeedForStudent resolves the de-duplicated, recency-ordered set of
// notifications visible to one student: membership → targets → notifications.
func (s *service) FeedForStudent(ctx context.Context, studentID string) ([]domain.Notification, error) {
	if _, err := s.users.Get(ctx, studentID); err != nil {
		return nil, err
	}
	classIDs, err := s.members.ClassIDsForStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(classIDs) == 0 {
		return []domain.Notification{}, nil
	}
	targets, err := s.targets.ListByClassIDs(ctx, classIDs)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(targets))
	feed := make([]domain.Notification, 0, len(targets))
	for _, t := range targets {
		if seen[t.NotificationID] {
			continue
		}
		seen[t.NotificationID] = true
		n, err := s.store.Get(ctx, t.NotificationID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// The notification was deleted between the target query
				// and this lookup.
				continue
			}
			return nil, err
		}
		feed = append(feed, *n)
	}
	sortNewestFirst(feed)
	return feed, nil
}

func (s *service) RecentForClass(ctx context.Context, classID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	targets, err := s.targets.ListRecentByClass(ctx, classID, limit)
	if err != nil {
		return nil, err
	}
	notifications := make([]domain.Notification, 0, len(targets))
	for _, t := range targets {
		n, err := s.store.Get(ctx, t.NotificationID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		notifications = append(notifications, *n)
	}
	return notifications, nil
}

func (s *service) Statistics(ctx context.Context, teacherID string) (*domain.NotificationStatistics, error) {
	if _, err := s.users.Get(ctx, teacherID); err != nil {
		return nil, err
	}
	total, err := s.store.CountByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	active, err := s.store.ListByTeacherAndStatus(ctx, teacherID, domain.StatusActive)
	if err != nil {
		return nil, err
	}
	expired, err := s.store.ListByTeacherAndStatus(ctx, teacherID, domain.StatusExpired)
	if err != nil {
		return nil, err
	}
	inactive := total - len(active) - len(expired)
	if inactive < 0 {
		// Only possible if a status outside the three-valued enum was
		// persisted; surface it instead of returning a negative count.
		return nil, fmt.Errorf("inconsistent notification status counts for teacher %s", teacherID)
	}
	return &domain.NotificationStatistics{
		Total:    total,
		Active:   len(active),
		Expired:  len(expired),
		Inactive: inactive,
	}, nil
}

// SweepExpired transitions every ACTIVE notification whose scheduled time has
// passed to EXPIRED. A failed update is reported and the sweep continues; a
// notification already transitioned by a concurrent sweep is skipped
// silently. Calling the sweep twice with no intervening writes performs zero
// additional mutations.
func (s *service) SweepExpired(ctx context.Context, now time.Time) (*domain.SweepResult, error) {
	due, err := s.store.ListActiveScheduledBefore(ctx, now)
	if err != nil {
		return nil, err
	}
	res := &domain.SweepResult{Expired: []string{}}
	for _, n := range due {
		if err := s.store.MarkExpired(ctx, n.NotificationID, now); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			slog.Error("sweep: mark expired failed", "notification_id", n.NotificationID, "err", err)
			res.Failed = append(res.Failed, n.NotificationID)
			continue
		}
		res.Expired = append(res.Expired, n.NotificationID)
	}
	return res, nil
}

func (s *service) Upcoming(ctx context.Context, now time.Time) ([]domain.Notification, error) {
	return s.store.ListActiveScheduledAfter(ctx, now)
}

// validateTargetClasses resolves every class id, checks the requesting
// teacher owns each one, and returns the list de-duplicated in input order.
func (s *service) validateTargetClasses(ctx context.Context, classIDs []string, teacherID string) ([]string, error) {
	seen := make(map[string]bool, len(classIDs))
	validated := make([]string, 0, len(classIDs))
	for _, classID := range classIDs {
		if seen[classID] {
			continue
		}
		seen[classID] = true
		cls, err := s.classes.Get(ctx, classID)
		if err != nil {
			return nil, err
		}
		if cls.TeacherID != teacherID {
			return nil, fmt.Errorf("class %s is not owned by the requesting teacher: %w", classID, domain.ErrForbidden)
		}
		validated = append(validated, classID)
	}
	return validated, nil
}

func buildTargets(n *domain.Notification, classIDs []string, sentAt time.Time) []domain.NotificationTarget {
	targets := make([]domain.NotificationTarget, 0, len(classIDs))
	for _, classID := range classIDs {
		targets = append(targets, domain.NotificationTarget{
			TargetID:              id.New(),
			NotificationID:        n.NotificationID,
			ClassID:               classID,
			SentAt:                sentAt,
			NotificationCreatedAt: n.CreatedAt,
		})
	}
	return targets
}

// sortNewestFirst orders by creation time descending; ties fall back to the
// notification id, which is a ULID and therefore tracks insertion order.
func sortNewestFirst(notifications []domain.Notification) {
	sort.Slice(notifications, func(i, j int) bool {
		if !notifications[i].CreatedAt.Equal(notifications[j].CreatedAt) {
			return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
		}
		return notifications[i].NotificationID > notifications[j].NotificationID
	})
}
