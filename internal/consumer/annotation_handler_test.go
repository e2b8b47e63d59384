package consumer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/fitness/internal/events"
	"example.com/fitness/internal/session"
)

type stubSessions struct {
	session session.Session
}

func (s stubSessions) Snapshot() session.Session { return s.session }

type stubList struct{ refreshes int }

func (l *stubList) Refresh(context.Context) { l.refreshes++ }

type stubDetail struct {
	id      string
	reloads int
}

func (d *stubDetail) ID() string { return d.id }

func (d *stubDetail) Reload(context.Context) { d.reloads++ }

func signedIn(sub string) stubSessions {
	return stubSessions{session: session.Session{Token: "t", User: session.Claims{"sub": sub}, AuthReady: true}}
}

func message(t *testing.T, eventType string, payload any) Message {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return Message{Topic: "recommendation_events", EventType: eventType, Payload: raw}
}

func TestRecommendationRefreshesListAndShownDetail(t *testing.T) {
	list, detail := &stubList{}, &stubDetail{id: "a1"}
	h := NewAnnotationHandler(signedIn("user-1"), list, detail)

	err := h.Handle(context.Background(), message(t, events.TypeRecommendationGenerated, events.RecommendationGenerated{
		ActivityID: "a1",
		UserID:     "user-1",
	}))
	require.NoError(t, err)
	require.Equal(t, 1, list.refreshes)
	require.Equal(t, 1, detail.reloads)

	err = h.Handle(context.Background(), message(t, events.TypeRecommendationGenerated, events.RecommendationGenerated{
		ActivityID: "a2",
		UserID:     "user-1",
	}))
	require.NoError(t, err)
	require.Equal(t, 2, list.refreshes)
	require.Equal(t, 1, detail.reloads)
}

func TestActivityCreatedRefreshesListOnly(t *testing.T) {
	list, detail := &stubList{}, &stubDetail{id: "a1"}
	h := NewAnnotationHandler(signedIn("user-1"), list, detail)

	err := h.Handle(context.Background(), message(t, events.TypeActivityCreated, events.ActivityCreated{
		ActivityID: "a1",
		UserID:     "user-1",
	}))
	require.NoError(t, err)
	require.Equal(t, 1, list.refreshes)
	require.Zero(t, detail.reloads)
}

func TestEventsForOtherUsersAreIgnored(t *testing.T) {
	list, detail := &stubList{}, &stubDetail{id: "a1"}
	h := NewAnnotationHandler(signedIn("user-1"), list, detail)

	err := h.Handle(context.Background(), message(t, events.TypeRecommendationGenerated, events.RecommendationGenerated{
		ActivityID: "a1",
		UserID:     "user-2",
	}))
	require.NoError(t, err)
	require.Zero(t, list.refreshes)
	require.Zero(t, detail.reloads)
}

func TestEventsWhileLoggedOutAreIgnored(t *testing.T) {
	list, detail := &stubList{}, &stubDetail{}
	h := NewAnnotationHandler(stubSessions{}, list, detail)

	err := h.Handle(context.Background(), message(t, events.TypeActivityCreated, events.ActivityCreated{UserID: "user-1"}))
	require.NoError(t, err)
	require.Zero(t, list.refreshes)
}

func TestUnknownEventTypeIsSkipped(t *testing.T) {
	list := &stubList{}
	h := NewAnnotationHandler(signedIn("user-1"), list, &stubDetail{})
	require.NoError(t, h.Handle(context.Background(), Message{EventType: "exercise.upserted", Payload: []byte(`{}`)}))
	require.Zero(t, list.refreshes)
}

func TestMalformedPayloadIsHandlerError(t *testing.T) {
	h := NewAnnotationHandler(signedIn("user-1"), &stubList{}, &stubDetail{})
	err := h.Handle(context.Background(), Message{EventType: events.TypeRecommendationGenerated, Payload: []byte(`[]`)})
	require.Error(t, err)
}
