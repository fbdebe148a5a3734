package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("JWT_SECRET", "test-secret")
	RegisterValidators()
	os.Exit(m.Run())
}

// newTestRouter swaps the global datastore for a fresh in-memory fake and
// builds the real route table on top of it.
func newTestRouter() *gin.Engine {
	DB = newFakeStore()
	r := gin.New()
	SetupRoutes(r)
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func performRaw(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func registerUser(t *testing.T, r *gin.Engine, name, email, password string) AuthResponse {
	t.Helper()
	w := doRequest(t, r, http.MethodPost, "/api/auth/register", "", gin.H{
		"name": name, "email": email, "password": password,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeJSON[AuthResponse](t, w)
}

func createTestEvent(t *testing.T, r *gin.Engine, token string, overrides gin.H) EventResponse {
	t.Helper()
	payload := gin.H{
		"title":       "Picnic",
		"description": "Food in the park",
		"date":        time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		"location":    "Park",
		"category":    "social",
	}
	for k, v := range overrides {
		payload[k] = v
	}
	w := doRequest(t, r, http.MethodPost, "/api/events", token, payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeJSON[EventResponse](t, w)
}

// fakeStore is an in-memory Datastore with the same observable semantics as
// MongoStore.
type fakeStore struct {
	mu     sync.Mutex
	users  map[primitive.ObjectID]*User
	events map[primitive.ObjectID]*Event
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  make(map[primitive.ObjectID]*User),
		events: make(map[primitive.ObjectID]*Event),
	}
}

func copyUser(u *User) *User {
	cp := *u
	cp.CreatedEvents = append([]primitive.ObjectID{}, u.CreatedEvents...)
	cp.JoinedEvents = append([]primitive.ObjectID{}, u.JoinedEvents...)
	return &cp
}

func copyEvent(e *Event) *Event {
	cp := *e
	cp.Attendees = append([]primitive.ObjectID{}, e.Attendees...)
	return &cp
}

func (s *fakeStore) CreateUser(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return ErrDuplicate
		}
	}
	now := time.Now()
	u.ID = primitive.NewObjectID()
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *fakeStore) FindUserByEmail(_ context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) FindUserByID(_ context.Context, id primitive.ObjectID) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (s *fakeStore) UpdateUserProfile(_ context.Context, id primitive.ObjectID, name, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Name = name
	u.Email = email
	u.UpdatedAt = time.Now()
	return copyUser(u), nil
}

func (s *fakeStore) UpdateUserPassword(_ context.Context, id primitive.ObjectID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Password = passwordHash
	u.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) UserNames(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make(map[primitive.ObjectID]string, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			names[id] = u.Name
		}
	}
	return names, nil
}

func (s *fakeStore) CreateEvent(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	e.ID = primitive.NewObjectID()
	e.CreatedAt = now
	e.UpdatedAt = now
	s.events[e.ID] = copyEvent(e)
	return nil
}

func (s *fakeStore) FindEventByID(_ context.Context, id primitive.ObjectID) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEvent(e), nil
}

func (s *fakeStore) ListEvents(_ context.Context, f EventFilter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := []Event{}
	for _, e := range s.events {
		if !matchesFilter(e, f) {
			continue
		}
		matched = append(matched, *copyEvent(e))
	}

	sort.Slice(matched, func(i, j int) bool {
		if f.SortDesc {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].Date.Before(matched[j].Date)
	})

	if f.Limit > 0 && int64(len(matched)) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func matchesFilter(e *Event, f EventFilter) bool {
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Location != "" && !strings.Contains(strings.ToLower(e.Location), strings.ToLower(f.Location)) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.Title), needle) &&
			!strings.Contains(strings.ToLower(e.Description), needle) {
			return false
		}
	}
	if f.Day != nil {
		if e.Date.Before(*f.Day) || !e.Date.Before(f.Day.Add(24*time.Hour)) {
			return false
		}
	} else {
		if f.From != nil && e.Date.Before(*f.From) {
			return false
		}
		if f.Until != nil && !e.Date.Before(*f.Until) {
			return false
		}
	}
	if f.Creator != nil && !sameIdentity(e.Creator, *f.Creator) {
		return false
	}
	if f.NotCreator != nil && sameIdentity(e.Creator, *f.NotCreator) {
		return false
	}
	if f.Attendee != nil && !containsID(e.Attendees, *f.Attendee) {
		return false
	}
	return true
}

func (s *fakeStore) UpdateEvent(_ context.Context, id primitive.ObjectID, changes Event) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.Title = changes.Title
	e.Description = changes.Description
	e.Date = changes.Date
	e.Location = changes.Location
	e.Category = changes.Category
	e.Image = changes.Image
	e.UpdatedAt = time.Now()
	return copyEvent(e), nil
}

func (s *fakeStore) DeleteEvent(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *fakeStore) AddAttendee(_ context.Context, eventID, userID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}
	e.Attendees = append(e.Attendees, userID)
	e.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) RemoveAttendee(_ context.Context, eventID, userID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return ErrNotFound
	}
	e.Attendees = pullID(e.Attendees, userID)
	e.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) AddCreatedEvent(_ context.Context, userID, eventID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.CreatedEvents = append(u.CreatedEvents, eventID)
	u.JoinedEvents = append(u.JoinedEvents, eventID)
	return nil
}

func (s *fakeStore) AddJoinedEvent(_ context.Context, userID, eventID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.JoinedEvents = append(u.JoinedEvents, eventID)
	return nil
}

func (s *fakeStore) RemoveJoinedEvent(_ context.Context, userID, eventID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.JoinedEvents = pullID(u.JoinedEvents, eventID)
	return nil
}

func (s *fakeStore) RemoveEventRefs(_ context.Context, eventID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		u.CreatedEvents = pullID(u.CreatedEvents, eventID)
		u.JoinedEvents = pullID(u.JoinedEvents, eventID)
	}
	return nil
}

func pullID(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := ids[:0]
	for _, candidate := range ids {
		if !sameIdentity(candidate, id) {
			out = append(out, candidate)
		}
	}
	return out
}
