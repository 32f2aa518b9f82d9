package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/retentionapp/retention/internal/dates"
	"github.com/retentionapp/retention/internal/streak"
	"github.com/retentionapp/retention/internal/topic"
	"github.com/retentionapp/retention/internal/views"
)

const maxBodyBytes = 1 << 20

// response is the JSON envelope every endpoint returns. serverTime is
// always present so clients can correct for clock skew.
type response struct {
	Error      string `json:"error,omitempty"`
	ServerTime string `json:"serverTime"`
	User       *User  `json:"user,omitempty"`
	IsNewUser  *bool  `json:"isNewUser,omitempty"`

	Topic  *topic.Topic  `json:"topic,omitempty"`
	Topics []topic.Topic `json:"topics,omitempty"`
	Streak *int          `json:"streak,omitempty"`

	Stats    *views.Stats                 `json:"stats,omitempty"`
	Calendar map[dates.Date][]views.Event `json:"calendar,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, resp response) {
	resp.ServerTime = time.Now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Printf("failed to write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, response{Error: msg})
}

// fail maps store errors to HTTP statuses: missing records to 404,
// exhausted schedules to 409, validation errors to 400, the rest to 500.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var verr *topic.ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ErrAllReviewsComplete):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &verr):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Printf("request failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}

func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, response{})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"deviceId"`
	}
	if err := decodeBody(r, &req); err != nil || req.DeviceID == "" {
		s.writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}
	u, isNew, err := s.store.RegisterDevice(req.DeviceID, time.Now())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, response{User: &u, IsNewUser: &isNew})
}

func (s *Server) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.URL.Query().Get("userId")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "userId is required")
		return "", false
	}
	return id, true
}

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	topics, err := s.store.Topics(userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if topics == nil {
		topics = []topic.Topic{}
	}
	s.writeJSON(w, http.StatusOK, response{Topics: topics})
}

func (s *Server) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		topic.Fields
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	t, err := s.store.CreateTopic(req.UserID, req.Fields, dates.FromTime(time.Now()))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(EventTopicCreated, t)
	s.writeJSON(w, http.StatusCreated, response{Topic: &t})
}

func (s *Server) handleUpdateTopic(w http.ResponseWriter, r *http.Request) {
	var u topic.Update
	if err := decodeBody(r, &u); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t, err := s.store.UpdateTopic(chi.URLParam(r, "id"), u)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(EventTopicUpdated, t)
	s.writeJSON(w, http.StatusOK, response{Topic: &t})
}

func (s *Server) handleDeleteTopic(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteTopic(id); err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(EventTopicDeleted, map[string]string{"id": id})
	s.writeJSON(w, http.StatusOK, response{})
}

func (s *Server) handleCompleteReview(w http.ResponseWriter, r *http.Request) {
	t, count, err := s.store.CompleteReview(chi.URLParam(r, "id"), time.Now())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.hub.Broadcast(EventReviewCompleted, t)
	s.writeJSON(w, http.StatusOK, response{Topic: &t, Streak: &count})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	topics, err := s.store.Topics(userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	current, longest, err := s.store.Streak(userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	st := streak.State{Count: current, Longest: longest}
	stats := views.Dashboard(topics, st, dates.FromTime(time.Now()))
	s.writeJSON(w, http.StatusOK, response{Stats: &stats})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	topics, err := s.store.Topics(userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, response{Calendar: views.Calendar(topics)})
}
