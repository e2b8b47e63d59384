package view

import (
	"fmt"
	"strconv"
	"time"

	"example.com/fitness/internal/domain"
)

// User-visible messages.
const (
	MessageLoading      = "Loading..."
	MessageEmptyList    = "No activities recorded yet"
	MessageNotFound     = "Activity not found"
	MessageNetwork      = "Something went wrong. Please try again."
	MessageUnauthorized = "Your session has expired. Please log in again."
	MessageValidation   = "The request was rejected. Check the activity details and try again."

	NoteAnalysisPending = "AI analysis is still running. Type refresh to check again."
)

// FailureMessage picks the message for a failed fetch.
func FailureMessage(err error) string {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return MessageNotFound
	case domain.KindUnauthorized:
		return MessageUnauthorized
	case domain.KindValidation:
		return MessageValidation
	default:
		return MessageNetwork
	}
}

// ListItem is one row of the activity list.
type ListItem struct {
	ID        string
	Title     string
	Summary   string
	CreatedAt time.Time
}

// ListView is what the list screen shows. Message is set for every phase except a non-empty Loaded.
type ListView struct {
	Phase     Phase
	Message   string
	Items     []ListItem
	Retryable bool
}

// RenderList turns the list state into the list screen.
func RenderList(s ListState) ListView {
	v := ListView{Phase: s.Phase}
	switch s.Phase {
	case PhaseLoading:
		v.Message = MessageLoading
	case PhaseFailed:
		v.Message = FailureMessage(s.Err)
		v.Retryable = s.Kind() == domain.KindNetwork
	case PhaseLoaded:
		if len(s.Data) == 0 {
			v.Message = MessageEmptyList
			return v
		}
		v.Items = make([]ListItem, 0, len(s.Data))
		for _, a := range s.Data {
			v.Items = append(v.Items, ListItem{
				ID:        a.ID,
				Title:     a.Type.Label(),
				Summary:   Summary(a),
				CreatedAt: a.CreatedAt.Time,
			})
		}
	}
	return v
}

// DetailView is what the detail screen shows. Note is set while no AI annotation has arrived.
type DetailView struct {
	Phase       Phase
	Message     string
	NotFound    bool
	Retryable   bool
	Title       string
	Summary     string
	Facts       []Fact
	Annotations domain.AnnotationView
	Note        string
}

// Fact is a labelled value in the detail header.
type Fact struct {
	Label string
	Value string
}

// RenderDetail turns the detail state into the detail screen. Absent AI fields render their fallback text.
func RenderDetail(s DetailState) DetailView {
	v := DetailView{Phase: s.Phase}
	switch s.Phase {
	case PhaseLoading:
		v.Message = MessageLoading
	case PhaseFailed:
		v.NotFound = s.NotFound()
		v.Message = FailureMessage(s.Err)
		v.Retryable = s.Kind() == domain.KindNetwork
	case PhaseLoaded:
		a := s.Data
		v.Title = a.Type.Label()
		v.Summary = Summary(*a)
		v.Facts = facts(*a)
		v.Annotations = a.View()
		if a.Pending() {
			v.Note = NoteAnalysisPending
		}
	}
	return v
}

// Summary is the one-line description of an activity.
func Summary(a domain.Activity) string {
	return fmt.Sprintf("%s min, %s kcal", formatNumber(a.Duration), formatNumber(a.CaloriesBurned))
}

func facts(a domain.Activity) []Fact {
	out := []Fact{
		{Label: "Duration", Value: formatNumber(a.Duration) + " minutes"},
		{Label: "Calories Burned", Value: formatNumber(a.CaloriesBurned)},
	}
	if a.StartTime != nil && !a.StartTime.IsZero() {
		out = append(out, Fact{Label: "Start Time", Value: a.StartTime.Format(time.DateTime)})
	}
	if !a.CreatedAt.IsZero() {
		out = append(out, Fact{Label: "Recorded", Value: a.CreatedAt.Format(time.DateTime)})
	}
	for _, key := range a.AdditionalMetrics.Keys() {
		out = append(out, Fact{Label: key, Value: fmt.Sprint(a.AdditionalMetrics[key])})
	}
	return out
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
