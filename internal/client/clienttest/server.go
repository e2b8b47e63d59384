// Package clienttest provides an in-memory activity API for tests.
package clienttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"example.com/fitness/internal/domain"
)

// RecordedRequest captures the headers of a request the server received.
type RecordedRequest struct {
	Method         string
	Path           string
	Authorization  string
	UserID         string
	RequestID      string
	IdempotencyKey string
}

type failure struct {
	status int
	code   string
	detail string
}

// Server serves /api/activities and /api/activities/{id} from memory with the
// backend's {"type","detail"} error bodies.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	records     []domain.Activity
	replays     map[string]string
	requests    []RecordedRequest
	failures    []failure
	acceptToken string
	now         func() time.Time
}

// NewServer starts a server that is closed when t finishes.
func NewServer(t testing.TB) *Server {
	s := &Server{
		replays: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the API root to hand to client.New.
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

// RegisterRoutes wires endpoints to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/activities", s.activities)
	mux.HandleFunc("/api/activities/", s.activityByID)
}

// RequireToken makes the server reject every bearer token except token.
func (s *Server) RequireToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acceptToken = token
}

// Seed stores an activity as if the backend had created it.
func (s *Server) Seed(a domain.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, a)
}

// Annotate attaches AI annotations to a stored activity.
func (s *Server) Annotate(id string, annotations domain.AIAnnotations) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].AIAnnotations = annotations
			return true
		}
	}
	return false
}

// FailNext makes the next request answer with status and an error body.
func (s *Server) FailNext(status int, code, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{status: status, code: code, detail: detail})
}

// Requests returns a copy of every request received so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

func (s *Server) record(r *http.Request) (failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, RecordedRequest{
		Method:         r.Method,
		Path:           r.URL.Path,
		Authorization:  r.Header.Get("Authorization"),
		UserID:         r.Header.Get("X-User-ID"),
		RequestID:      r.Header.Get("X-Request-ID"),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if len(s.failures) == 0 {
		return failure{}, false
	}
	next := s.failures[0]
	s.failures = s.failures[1:]
	return next, true
}

func (s *Server) authorized(w http.ResponseWriter, r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	s.mu.Lock()
	accept := s.acceptToken
	s.mu.Unlock()
	if accept != "" && token != accept {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
		return false
	}
	return true
}

func (s *Server) activities(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.record(r); ok {
		writeError(w, f.status, f.code, f.detail)
		return
	}
	if !s.authorized(w, r) {
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.createActivity(w, r)
	case http.MethodGet:
		s.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (s *Server) activityByID(w http.ResponseWriter, r *http.Request) {
	if f, ok := s.record(r); ok {
		writeError(w, f.status, f.code, f.detail)
		return
	}
	if !s.authorized(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/activities/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	userID := r.Header.Get("X-User-ID")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.records {
		if a.ID == id && (userID == "" || a.UserID == userID) {
			writeJSON(w, http.StatusOK, a)
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found", "activity not found")
}

func (s *Server) createActivity(w http.ResponseWriter, r *http.Request) {
	var draft domain.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := draft.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	key := r.Header.Get("Idempotency-Key")
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.replays[key]; ok && key != "" {
		for _, a := range s.records {
			if a.ID == id {
				writeJSON(w, http.StatusOK, a)
				return
			}
		}
	}

	activity := domain.Activity{
		ID:                uuid.NewString(),
		UserID:            r.Header.Get("X-User-ID"),
		Type:              draft.Type,
		Duration:          draft.Duration,
		CaloriesBurned:    draft.CaloriesBurned,
		StartTime:         draft.StartTime,
		AdditionalMetrics: draft.AdditionalMetrics,
		CreatedAt:         domain.NewTimestamp(s.now()),
	}
	s.records = append(s.records, activity)
	if key != "" {
		s.replays[key] = activity.ID
	}
	writeJSON(w, http.StatusCreated, activity)
}

func (s *Server) listActivities(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Activity, 0, len(s.records))
	for _, a := range s.records {
		if userID == "" || a.UserID == userID {
			out = append(out, a)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
