package domain

import "strings"

// Headings and fallback text shown for AI annotation sections.
const (
	HeadingAnalysis     = "AI Analysis"
	HeadingImprovements = "Suggested Improvements"
	HeadingSuggestions  = "Exercise Suggestions"
	HeadingSafety       = "Safety Guidelines"

	FallbackRecommendation = "No AI analysis available yet"
	FallbackImprovements   = "No improvement suggestions available"
	FallbackSuggestions    = "No exercise suggestions available"
	FallbackSafety         = "No specific safety guidelines available"
)

// AIAnnotations are the advisory fields the backend attaches after analysing an activity.
// Each field is independently absent until the analysis completes.
type AIAnnotations struct {
	Recommendation Optional[string]   `json:"recommendation"`
	Improvements   Optional[[]string] `json:"improvements"`
	Suggestions    Optional[[]string] `json:"suggestions"`
	Safety         Optional[[]string] `json:"safety"`
}

// Pending reports whether no annotation has arrived yet.
func (a AIAnnotations) Pending() bool {
	return !a.Recommendation.Present() && !a.Improvements.Present() &&
		!a.Suggestions.Present() && !a.Safety.Present()
}

// Section is one rendered annotation block.
type Section struct {
	Heading  string
	Lines    []string
	Fallback bool
}

// AnnotationView is the render-ready form of AIAnnotations with fallbacks applied.
type AnnotationView struct {
	Analysis     Section
	Improvements Section
	Suggestions  Section
	Safety       Section
}

// Sections returns the blocks in display order.
func (v AnnotationView) Sections() []Section {
	return []Section{v.Analysis, v.Improvements, v.Suggestions, v.Safety}
}

// View applies the fallback text to every absent or empty field.
func (a AIAnnotations) View() AnnotationView {
	return AnnotationView{
		Analysis:     textSection(HeadingAnalysis, a.Recommendation, FallbackRecommendation),
		Improvements: listSection(HeadingImprovements, a.Improvements, FallbackImprovements),
		Suggestions:  listSection(HeadingSuggestions, a.Suggestions, FallbackSuggestions),
		Safety:       listSection(HeadingSafety, a.Safety, FallbackSafety),
	}
}

func textSection(heading string, value Optional[string], fallback string) Section {
	if text, ok := value.Get(); ok && strings.TrimSpace(text) != "" {
		return Section{Heading: heading, Lines: []string{strings.TrimSpace(text)}}
	}
	return Section{Heading: heading, Lines: []string{fallback}, Fallback: true}
}

func listSection(heading string, value Optional[[]string], fallback string) Section {
	items, _ := value.Get()
	lines := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) == 0 {
		return Section{Heading: heading, Lines: []string{fallback}, Fallback: true}
	}
	return Section{Heading: heading, Lines: lines}
}
