package class

import (
	"context"
	"fmt"
	"time"

	"github.com/school-api-nosql/internal/domain"
	"github.com/school-api-nosql/internal/pkg/id"
)

type Service interface {
	Create(ctx context.Context, req domain.CreateClassRequest, teacherID string) (*domain.Class, error)
	Get(ctx context.Context, classID string) (*domain.Class, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]domain.Class, error)
	Enroll(ctx context.Context, classID, studentID, requesterID string) (*domain.ClassMember, error)
	Members(ctx context.Context, classID string) ([]domain.ClassMember, error)
}

type classStore interface {
	Put(ctx context.Context, c *domain.Class) error
	Get(ctx context.Context, classID string) (*domain.Class, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]domain.Class, error)
}

type membershipStore interface {
	Put(ctx context.Context, m *domain.ClassMember) error
	ListByClass(ctx context.Context, classID string) ([]domain.ClassMember, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type service struct {
	classes classStore
	members membershipStore
	users   userStore
}

type ServiceDeps struct {
	ClassRepo      classStore
	MembershipRepo membershipStore
	UserRepo       userStore
}

func NewService(deps ServiceDeps) Service {
	return &service{
		classes: deps.ClassRepo,
		members: deps.MembershipRepo,
		users:   deps.UserRepo,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateClassRequest, teacherID string) (*domain.Class, error) {
	teacher, err := s.users.Get(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if teacher.Role != domain.RoleTeacher {
		return nil, fmt.Errorf("only teachers may create classes: %w", domain.ErrForbidden)
	}
	if req.Name == "" {
		return nil, fmt.Errorf("class name is required: %w", domain.ErrBadRequest)
	}
	now := time.Now().UTC()
	c := &domain.Class{
		ClassID:     id.New(),
		Name:        req.Name,
		Description: req.Description,
		TeacherID:   teacherID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.classes.Put(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *service) Get(ctx context.Context, classID string) (*domain.Class, error) {
	return s.classes.Get(ctx, classID)
}

func (s *service) ListByTeacher(ctx context.Context, teacherID string) ([]domain.Class, error) {
	return s.classes.ListByTeacher(ctx, teacherID)
}

func (s *service) Enroll(ctx context.Context, classID, studentID, requesterID string) (*domain.ClassMember, error) {
	cls, err := s.classes.Get(ctx, classID)
	if err != nil {
		return nil, err
	}
	if cls.TeacherID != requesterID {
		return nil, fmt.Errorf("only the owning teacher may manage the roster: %w", domain.ErrForbidden)
	}
	student, err := s.users.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.Role != domain.RoleStudent {
		return nil, fmt.Errorf("user %s is not a student: %w", studentID, domain.ErrBadRequest)
	}
	m := &domain.ClassMember{
		ClassID:   classID,
		StudentID: studentID,
		JoinedAt:  time.Now().UTC(),
	}
	if err := s.members.Put(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *service) Members(ctx context.Context, classID string) ([]domain.ClassMember, error) {
	if _, err := s.classes.Get(ctx, classID); err != nil {
		return nil, err
	}
	return s.members.ListByClass(ctx, classID)
}
