package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"example.com/fitness/internal/events"
	"example.com/fitness/internal/session"
)

// SessionReader exposes the signed-in user.
type SessionReader interface {
	Snapshot() session.Session
}

// Refresher is the list controller's refresh action.
type Refresher interface {
	Refresh(ctx context.Context)
}

// Reloader is the detail controller's reload action for the activity it shows.
type Reloader interface {
	ID() string
	Reload(ctx context.Context)
}

// HandlerOption configures the AnnotationHandler.
type HandlerOption func(*AnnotationHandler)

// WithHandlerLogger overrides the default no-op logger.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *AnnotationHandler) { h.logger = logger }
}

// AnnotationHandler refreshes the open screens when the signed-in user's activities change
// on the backend: a new activity refreshes the list, new AI annotations also reload the
// detail screen if it shows that activity.
type AnnotationHandler struct {
	sessions SessionReader
	list     Refresher
	detail   Reloader
	logger   *zap.Logger
}

// NewAnnotationHandler wires the handler to the session and the two controllers.
func NewAnnotationHandler(sessions SessionReader, list Refresher, detail Reloader, opts ...HandlerOption) *AnnotationHandler {
	h := &AnnotationHandler{
		sessions: sessions,
		list:     list,
		detail:   detail,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle dispatches on the event type. Unknown types and other users' events are skipped.
func (h *AnnotationHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case events.TypeRecommendationGenerated:
		var evt events.RecommendationGenerated
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode recommendation.generated: %w", err)
		}
		if !h.ownedBySession(evt.UserID) {
			return nil
		}
		h.list.Refresh(ctx)
		if evt.ActivityID != "" && h.detail.ID() == evt.ActivityID {
			h.logger.Debug("reloading activity with new annotations", zap.String("activity_id", evt.ActivityID))
			h.detail.Reload(ctx)
		}
		return nil

	case events.TypeActivityCreated:
		var evt events.ActivityCreated
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode activity.created: %w", err)
		}
		if !h.ownedBySession(evt.UserID) {
			return nil
		}
		h.list.Refresh(ctx)
		return nil

	default:
		recordIgnored("event_type")
		return nil
	}
}

func (h *AnnotationHandler) ownedBySession(userID string) bool {
	current := h.sessions.Snapshot()
	if !current.AuthReady {
		recordIgnored("logged_out")
		return false
	}
	if userID != "" && userID != current.User.Subject() {
		recordIgnored("other_user")
		return false
	}
	return true
}
