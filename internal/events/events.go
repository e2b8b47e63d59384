// Package events defines the backend event payloads the client listens for.
package events

import "time"

// Event type header values.
const (
	TypeActivityCreated         = "activity.created"
	TypeRecommendationGenerated = "recommendation.generated"
)

// ActivityCreated is emitted when the backend accepts a new activity, from any device.
type ActivityCreated struct {
	ActivityID   string    `json:"activity_id"`
	UserID       string    `json:"user_id"`
	ActivityType string    `json:"activity_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// RecommendationGenerated is emitted once the AI service has attached annotations to an activity.
type RecommendationGenerated struct {
	RecommendationID string    `json:"recommendation_id"`
	ActivityID       string    `json:"activity_id"`
	UserID           string    `json:"user_id"`
	ActivityType     string    `json:"activity_type"`
	GeneratedAt      time.Time `json:"generated_at"`
}
