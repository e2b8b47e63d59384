package view

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fitness/internal/domain"
)

func TestRenderDetailFallbacksForAbsentAnnotations(t *testing.T) {
	v := RenderDetail(DetailState{Phase: PhaseLoaded, Data: activity("a1")})

	require.Equal(t, PhaseLoaded, v.Phase)
	require.Empty(t, v.Message)
	require.Equal(t, "Running", v.Title)

	sections := v.Annotations.Sections()
	require.Len(t, sections, 4)
	want := []string{
		domain.FallbackRecommendation,
		domain.FallbackImprovements,
		domain.FallbackSuggestions,
		domain.FallbackSafety,
	}
	for i, s := range sections {
		require.True(t, s.Fallback)
		require.Equal(t, []string{want[i]}, s.Lines)
	}
	require.Equal(t, NoteAnalysisPending, v.Note)
}

func TestRenderDetailWithAnnotations(t *testing.T) {
	a := activity("a1")
	a.Recommendation = domain.Some("Solid tempo run.")
	a.Improvements = domain.Some([]string{"Warm up longer", " "})
	a.Safety = domain.Some([]string{})
	a.AdditionalMetrics = domain.Metrics{"steps": 4200.0, "route": "river loop"}
	a.CreatedAt = domain.NewTimestamp(time.Date(2024, 5, 1, 7, 30, 0, 0, time.UTC))

	v := RenderDetail(DetailState{Phase: PhaseLoaded, Data: a})
	require.Equal(t, []string{"Solid tempo run."}, v.Annotations.Analysis.Lines)
	require.Equal(t, []string{"Warm up longer"}, v.Annotations.Improvements.Lines)
	require.True(t, v.Annotations.Suggestions.Fallback)
	require.True(t, v.Annotations.Safety.Fallback)
	require.Equal(t, "30 min, 250 kcal", v.Summary)
	require.Contains(t, v.Facts, Fact{Label: "Recorded", Value: "2024-05-01 07:30:00"})
	require.Contains(t, v.Facts, Fact{Label: "steps", Value: "4200"})
	require.Contains(t, v.Facts, Fact{Label: "route", Value: "river loop"})
	require.Empty(t, v.Note)
}

func TestRenderDetailFailures(t *testing.T) {
	nf := RenderDetail(DetailState{Phase: PhaseFailed, Err: &domain.Error{Kind: domain.KindNotFound}})
	require.True(t, nf.NotFound)
	require.Equal(t, MessageNotFound, nf.Message)
	require.False(t, nf.Retryable)

	nw := RenderDetail(DetailState{Phase: PhaseFailed, Err: errors.New("dial tcp: connection refused")})
	require.False(t, nw.NotFound)
	require.Equal(t, MessageNetwork, nw.Message)
	require.True(t, nw.Retryable)

	un := RenderDetail(DetailState{Phase: PhaseFailed, Err: &domain.Error{Kind: domain.KindUnauthorized}})
	require.Equal(t, MessageUnauthorized, un.Message)

	require.Equal(t, MessageLoading, RenderDetail(DetailState{Phase: PhaseLoading}).Message)
}

func TestRenderList(t *testing.T) {
	require.Equal(t, MessageLoading, RenderList(ListState{Phase: PhaseLoading}).Message)
	require.Equal(t, MessageEmptyList, RenderList(ListState{Phase: PhaseLoaded, Data: []domain.Activity{}}).Message)

	failed := RenderList(ListState{Phase: PhaseFailed, Err: &domain.Error{Kind: domain.KindValidation}})
	require.Equal(t, MessageValidation, failed.Message)
	require.False(t, failed.Retryable)

	hiit := activity("a2")
	hiit.Type = domain.ActivityHIIT
	loaded := RenderList(ListState{Phase: PhaseLoaded, Data: []domain.Activity{*activity("a1"), *hiit}})
	require.Empty(t, loaded.Message)
	require.Len(t, loaded.Items, 2)
	require.Equal(t, "Running", loaded.Items[0].Title)
	require.Equal(t, "HIIT", loaded.Items[1].Title)
	require.Equal(t, "a2", loaded.Items[1].ID)
}
