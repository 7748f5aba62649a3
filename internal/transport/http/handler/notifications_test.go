package handler

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/school-api-nosql/internal/config"
	"github.com/school-api-nosql/internal/domain"
	jwtinfra "github.com/school-api-nosql/internal/infrastructure/jwt"
	"github.com/school-api-nosql/internal/transport/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mock ---

type mockNotificationSvc struct{ mock.Mock }

func (m *mockNotificationSvc) Create(ctx context.Context, req domain.CreateNotificationRequest, authorID string) (*domain.Notification, error) {
	args := m.Called(ctx, req, authorID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotificationSvc) Update(ctx context.Context, notificationID string, req domain.UpdateNotificationRequest, requesterID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID, req, requesterID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotificationSvc) Delete(ctx context.Context, notificationID, requesterID string) error {
	return m.Called(ctx, notificationID, requesterID).Error(0)
}

func (m *mockNotificationSvc) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	args := m.Called(ctx, notificationID)
	if n, _ := args.Get(0).(*domain.Notification); n != nil {
		return n, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotificationSvc) ListByTeacher(ctx context.Context, teacherID string) ([]domain.Notification, error) {
	args := m.Called(ctx, teacherID)
	return args.Get(0).([]domain.Notification), args.Error(1)
}

func (m *mockNotificationSvc) FeedForStudent(ctx context.Context, studentID string) ([]domain.Notification, error) {
	args := m.Called(ctx, studentID)
	return args.Get(0).([]domain.Notification), args.Error(1)
}

func (m *mockNotificationSvc) RecentForClass(ctx context.Context, classID string, limit int) ([]domain.Notification, error) {
	args := m.Called(ctx, classID, limit)
	return args.Get(0).([]domain.Notification), args.Error(1)
}

func (m *mockNotificationSvc) Statistics(ctx context.Context, teacherID string) (*domain.NotificationStatistics, error) {
	args := m.Called(ctx, teacherID)
	if s, _ := args.Get(0).(*domain.NotificationStatistics); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotificationSvc) SweepExpired(ctx context.Context, now time.Time) (*domain.SweepResult, error) {
	args := m.Called(ctx, now)
	if r, _ := args.Get(0).(*domain.SweepResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockNotificationSvc) Upcoming(ctx context.Context, now time.Time) ([]domain.Notification, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]domain.Notification), args.Error(1)
}

// --- helpers ---

// newTestJWTProvider generates a fresh RSA key pair and returns a *jwtinfra.Provider.
func newTestJWTProvider(t *testing.T) *jwtinfra.Provider {
	t.Helper()
	privKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	dir := t.TempDir()
	privPath := filepath.Join(dir, "private.pem")
	pubPath := filepath.Join(dir, "public.pem")

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(privKey)})
	require.NoError(t, os.WriteFile(privPath, privPEM, 0600))

	pubBytes, err := x509.MarshalPKIXPublicKey(&privKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})
	require.NoError(t, os.WriteFile(pubPath, pubPEM, 0600))

	p, err := jwtinfra.NewProvider(&config.Config{
		JWTPrivateKeyPath: privPath,
		JWTPublicKeyPath:  pubPath,
		JWTExpiry:         24 * time.Hour,
	})
	require.NoError(t, err)
	return p
}

// bearerReq builds a request with a signed Bearer token for the given userID and role.
func bearerReq(t *testing.T, p *jwtinfra.Provider, method, target, userID, role string, body []byte) *http.Request {
	t.Helper()
	token, err := p.Sign(userID, role)
	require.NoError(t, err)
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// withChiID injects a chi URL param "id" into the request context.
func withChiID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// serveAuthed wraps the handler with middleware.Auth before serving.
func serveAuthed(p *jwtinfra.Provider, h http.Handler, w http.ResponseWriter, r *http.Request) {
	middleware.Auth(p)(h).ServeHTTP(w, r)
}

// --- Create tests ---

func TestNotificationCreate_MissingClaims(t *testing.T) {
	svc := &mockNotificationSvc{}
	h := NewNotificationHandler(svc)
	r := httptest.NewRequest(http.MethodPost, "/v1/notifications", nil)
	rr := httptest.NewRecorder()
	h.Create(rr, r) // called directly, no claims in context
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestNotificationCreate_InvalidBody(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockNotificationSvc{}
	h := NewNotificationHandler(svc)

	r := bearerReq(t, p, http.MethodPost, "/v1/notifications", "t1", domain.RoleTeacher, []byte("not-json"))
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Create), rr, r)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestNotificationCreate_UnownedClass(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockNotificationSvc{}
	svc.On("Create", mock.Anything, mock.Anything, "t1").Return(nil, domain.ErrForbidden)
	h := NewNotificationHandler(svc)
	body, _ := json.Marshal(domain.CreateNotificationRequest{
		Title: "Exam", Content: "Chapter 5", ClassIDs: []string{"c9"},
	})

	r := bearerReq(t, p, http.MethodPost, "/v1/notifications", "t1", domain.RoleTeacher, body)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Create), rr, r)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	svc.AssertExpectations(t)
}

func TestNotificationCreate_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockNotificationSvc{}
	created := &domain.Notification{NotificationID: "n1", TeacherID: "t1", Title: "Exam", Status: domain.StatusActive}
	svc.On("Create", mock.Anything, mock.Anything, "t1").Return(created, nil)
	h := NewNotificationHandler(svc)
	body, _ := json.Marshal(domain.CreateNotificationRequest{
		Title: "Exam", Content: "Chapter 5", ClassIDs: []string{"c1"},
	})

	r := bearerReq(t, p, http.MethodPost, "/v1/notifications", "t1", domain.RoleTeacher, body)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Create), rr, r)

	assert.Equal(t, http.StatusCreated, rr.Code)
	var resp domain.Notification
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "n1", resp.NotificationID)
	svc.AssertExpectations(t)
}

// --- Get tests ---

func TestNotificationGet_NotFound(t *testing.T) {
	svc := &mockNotificationSvc{}
	svc.On("Get", mock.Anything, "missing").Return(nil, domain.ErrNotFound)
	h := NewNotificationHandler(svc)

	r := withChiID(httptest.NewRequest(http.MethodGet, "/v1/notifications/missing", nil), "missing")
	rr := httptest.NewRecorder()
	h.Get(rr, r)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// --- Update tests ---

func TestNotificationUpdate_NonAuthor(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockNotificationSvc{}
	svc.On("Update", mock.Anything, "n1", mock.Anything, "intruder").Return(nil, domain.ErrForbidden)
	h := NewNotificationHandler(svc)
	body, _ := json.Marshal(domain.UpdateNotificationRequest{})

	r := bearerReq(t, p, http.MethodPut, "/v1/notifications/n1", "intruder", domain.RoleTeacher, body)
	r = withChiID(r, "n1")
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Update), rr, r)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestNotificationUpdate_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockNotificationSvc{}
	updated := &domain.Notification{NotificationID: "n1", TeacherID: "t1", Title: "Rescheduled"}
	svc.On("Update", mock.Anything, "n1", mock.Anything, "t1").Return(updated, nil)
	h := NewNotificationHandler(svc)
	title := "Rescheduled"
	body, _ := json.Marshal(domain.UpdateNotificationRequest{Title: &title})

	r := bearerReq(t, p, http.MethodPut, "/v1/notifications/n1", "t1", domain.RoleTeacher, body)
	r = withChiID(r, "n1")
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Update), rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp domain.Notification
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "Rescheduled", resp.Title)
	svc.AssertExpectations(t)
}

// --- Delete tests ---

func TestNotificationDelete_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockNotificationSvc{}
	svc.On("Delete", mock.Anything, "n1", "t1").Return(nil)
	h := NewNotificationHandler(svc)

	r := bearerReq(t, p, http.MethodDelete, "/v1/notifications/n1", "t1", domain.RoleTeacher, nil)
	r = withChiID(r, "n1")
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Delete), rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

// --- Feed tests ---

func TestNotificationFeed_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockNotificationSvc{}
	svc.On("FeedForStudent", mock.Anything, "s1").Return([]domain.Notification{
		{NotificationID: "n2"},
		{NotificationID: "n1"},
	}, nil)
	h := NewNotificationHandler(svc)

	r := bearerReq(t, p, http.MethodGet, "/v1/notifications/student/feed", "s1", domain.RoleStudent, nil)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Feed), rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp []domain.Notification
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "n2", resp[0].NotificationID)
	svc.AssertExpectations(t)
}

func TestNotificationFeed_EmptyIsJSONArray(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockNotificationSvc{}
	svc.On("FeedForStudent", mock.Anything, "s1").Return([]domain.Notification{}, nil)
	h := NewNotificationHandler(svc)

	r := bearerReq(t, p, http.MethodGet, "/v1/notifications/student/feed", "s1", domain.RoleStudent, nil)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Feed), rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

// --- RecentForClass tests ---

func TestRecentForClass_BadLimit(t *testing.T) {
	svc := &mockNotificationSvc{}
	h := NewNotificationHandler(svc)

	r := withChiID(httptest.NewRequest(http.MethodGet, "/v1/notifications/class/c1/recent?limit=abc", nil), "c1")
	rr := httptest.NewRecorder()
	h.RecentForClass(rr, r)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecentForClass_PassesLimit(t *testing.T) {
	svc := &mockNotificationSvc{}
	svc.On("RecentForClass", mock.Anything, "c1", 3).Return([]domain.Notification{}, nil)
	h := NewNotificationHandler(svc)

	r := withChiID(httptest.NewRequest(http.MethodGet, "/v1/notifications/class/c1/recent?limit=3", nil), "c1")
	rr := httptest.NewRecorder()
	h.RecentForClass(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	svc.AssertExpectations(t)
}

// --- Statistics tests ---

func TestNotificationStatistics_HappyPath(t *testing.T) {
	p := newTestJWTProvider(t)
	svc := &mockNotificationSvc{}
	svc.On("Statistics", mock.Anything, "t1").Return(&domain.NotificationStatistics{
		Total: 4, Active: 2, Expired: 1, Inactive: 1,
	}, nil)
	h := NewNotificationHandler(svc)

	r := bearerReq(t, p, http.MethodGet, "/v1/notifications/teacher/statistics", "t1", domain.RoleTeacher, nil)
	rr := httptest.NewRecorder()
	serveAuthed(p, http.HandlerFunc(h.Statistics), rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp domain.NotificationStatistics
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, 1, resp.Inactive)
	svc.AssertExpectations(t)
}

// --- Sweep tests ---

func TestSweepExpired_ReturnsResult(t *testing.T) {
	svc := &mockNotificationSvc{}
	svc.On("SweepExpired", mock.Anything, mock.AnythingOfType("time.Time")).
		Return(&domain.SweepResult{Expired: []string{"n1"}}, nil)
	h := NewNotificationHandler(svc)

	r := httptest.NewRequest(http.MethodPost, "/v1/notifications/sweep-expired", nil)
	rr := httptest.NewRecorder()
	h.SweepExpired(rr, r)

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp domain.SweepResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, []string{"n1"}, resp.Expired)
	svc.AssertExpectations(t)
}
