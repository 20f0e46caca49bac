package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/wanderhaven/llmcore/llm"
	"github.com/wanderhaven/llmcore/repair"
)

// Summary is a generated listing summary.
type Summary struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	Provenance string   `json:"provenance"`
}

// Persona is a generated five-section property persona.
type Persona struct {
	IdealGuests struct {
		Demographics []string `json:"demographics"`
		Interests    []string `json:"interests"`
	} `json:"ideal_guests"`
	UniqueFeatures     []string `json:"unique_features"`
	LocationAdvantages []string `json:"location_advantages"`
	Vibe               string   `json:"vibe"`
	PropertyClass      string   `json:"property_class"`
	Provenance         string   `json:"provenance"`
}

// Recommendation is one ranked property suggestion for a guest.
type Recommendation struct {
	PropertyID   int64    `json:"property_id"`
	MatchScore   int      `json:"match_score"`
	MatchReasons []string `json:"match_reasons"`
}

// Service generates artifacts through a Generator and repairs the
// structured output. In strict mode unrecoverable output surfaces as an
// error; otherwise a synthetic default is substituted so callers keep
// working.
type Service struct {
	gen      llm.Generator
	pipeline *repair.Pipeline
	strict   bool
	logger   zerolog.Logger
}

// NewService creates a Service.
func NewService(gen llm.Generator, pipeline *repair.Pipeline, strict bool, logger zerolog.Logger) *Service {
	return &Service{gen: gen, pipeline: pipeline, strict: strict, logger: logger}
}

var summarySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"summary":    map[string]any{"type": "string"},
		"highlights": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

// GenerateSummary produces a short marketing summary with highlights for
// a listing.
func (s *Service) GenerateSummary(ctx context.Context, p *Property) (*Summary, error) {
	req := llm.NewRequest(
		"You are a vacation rental copywriter. Summarize listings accurately from the data provided; do not invent amenities.",
		fmt.Sprintf("Write a 2-3 sentence summary and 3-5 highlights for this listing:\n\n%s", FormatProperty(p)),
	)
	req.Schema = summarySchema
	req.MaxTokens = 800

	resp, err := s.gen.Generate(ctx, req)
	if err != nil {
		return s.summaryFallback(p, err)
	}

	result, err := s.pipeline.RepairWithShape(resp.Content, repair.SummaryShape())
	if err != nil {
		return s.summaryFallback(p, err)
	}

	var summary Summary
	if err := json.Unmarshal([]byte(result.JSON), &summary); err != nil {
		return s.summaryFallback(p, err)
	}
	if summary.Highlights == nil {
		summary.Highlights = []string{}
	}
	summary.Provenance = result.Provenance
	return &summary, nil
}

func (s *Service) summaryFallback(p *Property, cause error) (*Summary, error) {
	if s.strict {
		return nil, cause
	}
	s.logger.Warn().Int64("property_id", p.ID).Err(cause).Msg("Summary generation failed, using default")
	return &Summary{
		Summary:    fmt.Sprintf("%s in %s, %s.", p.Title, p.City, p.Country),
		Highlights: []string{},
		Provenance: repair.ProvenanceFallback,
	}, nil
}

var personaSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"persona": map[string]any{"type": "string"},
		"ideal_guests": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"demographics": map[string]any{"type": "array"},
				"interests":    map[string]any{"type": "array"},
			},
		},
		"unique_features":     map[string]any{"type": "array"},
		"location_advantages": map[string]any{"type": "array"},
		"vibe":                map[string]any{"type": "string"},
		"property_class":      map[string]any{"type": "string"},
	},
}

// GeneratePropertyPersona produces the five-section persona describing
// who a property suits and why.
func (s *Service) GeneratePropertyPersona(ctx context.Context, p *Property) (*Persona, error) {
	req := llm.NewRequest(
		"You are a hospitality analyst. Profile rental listings from the data provided.",
		fmt.Sprintf("Describe the ideal guests (demographics and interests), unique features, location advantages, vibe, and property class for this listing:\n\n%s", FormatProperty(p)),
	)
	req.Schema = personaSchema
	req.MaxTokens = 1000

	resp, err := s.gen.Generate(ctx, req)
	if err != nil {
		return s.personaFallback(p.ID, err)
	}
	return s.decodePersona(p.ID, resp.Content)
}

// GenerateGuestPersona profiles a guest's travel preferences from their
// booking and review history, in the same five-section shape.
func (s *Service) GenerateGuestPersona(ctx context.Context, g *Guest) (*Persona, error) {
	req := llm.NewRequest(
		"You are a hospitality analyst. Profile travelers from their stay history; do not speculate beyond the data.",
		fmt.Sprintf("Describe the traveler profile (demographics and interests), preferred features, preferred locations, vibe, and property class for this guest:\n\n%s", FormatGuest(g)),
	)
	req.Schema = personaSchema
	req.MaxTokens = 1000

	resp, err := s.gen.Generate(ctx, req)
	if err != nil {
		return s.personaFallback(g.ID, err)
	}
	return s.decodePersona(g.ID, resp.Content)
}

func (s *Service) decodePersona(id int64, raw string) (*Persona, error) {
	result, err := s.pipeline.RepairWithShape(raw, repair.PersonaShape())
	if err != nil {
		return s.personaFallback(id, err)
	}

	var persona Persona
	if err := json.Unmarshal([]byte(result.JSON), &persona); err != nil {
		return s.personaFallback(id, err)
	}
	applyPersonaDefaults(&persona)
	persona.Provenance = result.Provenance
	return &persona, nil
}

func (s *Service) personaFallback(id int64, cause error) (*Persona, error) {
	if s.strict {
		return nil, cause
	}
	s.logger.Warn().Int64("subject_id", id).Err(cause).Msg("Persona generation failed, using default")
	persona := &Persona{Provenance: repair.ProvenanceFallback}
	applyPersonaDefaults(persona)
	return persona, nil
}

func applyPersonaDefaults(p *Persona) {
	if p.IdealGuests.Demographics == nil {
		p.IdealGuests.Demographics = []string{}
	}
	if p.IdealGuests.Interests == nil {
		p.IdealGuests.Interests = []string{}
	}
	if p.UniqueFeatures == nil {
		p.UniqueFeatures = []string{}
	}
	if p.LocationAdvantages == nil {
		p.LocationAdvantages = []string{}
	}
	if p.Vibe == "" {
		p.Vibe = "comfortable"
	}
	if p.PropertyClass == "" {
		p.PropertyClass = "mid-range"
	}
}

var recommendationSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"property_id":   map[string]any{"type": "integer"},
			"match_score":   map[string]any{"type": "integer"},
			"match_reasons": map[string]any{"type": "array"},
		},
	},
	"properties": map[string]any{
		"recommendations": map[string]any{"type": "array"},
	},
}

// GenerateRecommendations ranks candidate properties for a guest and
// returns at most limit suggestions, best match first. Suggestions naming
// properties outside the candidate set are discarded.
func (s *Service) GenerateRecommendations(ctx context.Context, g *Guest, candidates []*Property, limit int) ([]Recommendation, error) {
	if len(candidates) == 0 {
		return []Recommendation{}, nil
	}

	var listing strings.Builder
	valid := make(map[int64]bool, len(candidates))
	for _, p := range candidates {
		valid[p.ID] = true
		fmt.Fprintf(&listing, "Property %d:\n%s\n", p.ID, FormatProperty(p))
	}

	req := llm.NewRequest(
		"You are a travel recommendation engine. Score each candidate property for the guest from 0 to 100 and give concrete reasons. Respond with a JSON array of {property_id, match_score, match_reasons}.",
		fmt.Sprintf("Guest history:\n%s\nCandidate properties:\n%s", FormatGuest(g), listing.String()),
	)
	req.Schema = recommendationSchema
	req.MaxTokens = 1500
	req.Temperature = 0.3

	resp, err := s.gen.Generate(ctx, req)
	if err != nil {
		return s.recommendationFallback(candidates, limit, err)
	}

	recs, decodeErr := decodeRecommendations(resp.Content, s.pipeline)
	if decodeErr != nil {
		return s.recommendationFallback(candidates, limit, decodeErr)
	}

	recs = filterRecommendations(recs, valid)
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].MatchScore > recs[j].MatchScore })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// decodeRecommendations accepts either a bare array or an object wrapping
// one under "recommendations".
func decodeRecommendations(raw string, pipeline *repair.Pipeline) ([]Recommendation, error) {
	result, err := pipeline.Repair(raw)
	if err != nil {
		return nil, err
	}

	payload := result.JSON
	if wrapped := gjson.Get(payload, "recommendations"); wrapped.IsArray() {
		payload = wrapped.Raw
	}

	var recs []Recommendation
	if err := json.Unmarshal([]byte(payload), &recs); err != nil {
		return nil, &repair.StructuredOutputError{Raw: raw}
	}
	return recs, nil
}

func filterRecommendations(recs []Recommendation, valid map[int64]bool) []Recommendation {
	filtered := recs[:0]
	for _, rec := range recs {
		if !valid[rec.PropertyID] {
			continue
		}
		if rec.MatchReasons == nil {
			rec.MatchReasons = []string{}
		}
		filtered = append(filtered, rec)
	}
	return filtered
}

func (s *Service) recommendationFallback(candidates []*Property, limit int, cause error) ([]Recommendation, error) {
	if s.strict {
		return nil, cause
	}
	s.logger.Warn().Err(cause).Msg("Recommendation generation failed, ranking by rating")

	sorted := append([]*Property(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AverageRating() > sorted[j].AverageRating() })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	recs := make([]Recommendation, 0, len(sorted))
	for _, p := range sorted {
		recs = append(recs, Recommendation{
			PropertyID:   p.ID,
			MatchScore:   int(p.AverageRating() * 20),
			MatchReasons: []string{"Highly rated by previous guests"},
		})
	}
	return recs, nil
}
