// Package plant holds the identification domain model shared by the
// pipeline stages, the cache and the API. Boundary formats (classifier
// responses, database rows) are mapped into these types at the edges.
package plant

// RawSuggestion is a classifier candidate before catalog enrichment.
type RawSuggestion struct {
	ScientificName string  `json:"scientific_name"`
	CommonName     string  `json:"common_name"`
	Score          float64 `json:"score"` // 0..1
}

// Suggestion is a candidate species, optionally enriched from the catalog.
// Catalog fields are nil when the species is not in the local catalog.
type Suggestion struct {
	SpeciesID      *string      `json:"species_id"`
	CommonName     string       `json:"common_name"`
	ScientificName string       `json:"scientific_name"`
	Score          float64      `json:"confidence"`
	CareProfile    *CareProfile `json:"care_profile,omitempty"`
	Description    *string      `json:"description,omitempty"`
	ImageURL       *string      `json:"image_url,omitempty"`
}

// FromRaw builds an unenriched suggestion.
func FromRaw(raw RawSuggestion) Suggestion {
	return Suggestion{
		CommonName:     raw.CommonName,
		ScientificName: raw.ScientificName,
		Score:          raw.Score,
	}
}

// Enriched reports whether the suggestion matched a catalog species.
func (s Suggestion) Enriched() bool {
	return s.SpeciesID != nil
}

// Clone returns a deep copy of s.
func (s Suggestion) Clone() Suggestion {
	s.SpeciesID = cloneString(s.SpeciesID)
	s.Description = cloneString(s.Description)
	s.ImageURL = cloneString(s.ImageURL)
	s.CareProfile = s.CareProfile.Clone()
	return s
}

// Result is a completed identification. It is built once and then only
// copied, never modified.
type Result struct {
	ScanID        string       `json:"scan_id"`
	TopSuggestion *Suggestion  `json:"top_suggestion"`
	Suggestions   []Suggestion `json:"all_suggestions"`
	ImageURL      *string      `json:"image_url"`
	ThresholdMet  bool         `json:"threshold_met"`
	Confidence    float64      `json:"confidence"`
}

// Clone returns a deep copy of r. A nil receiver returns nil.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.ImageURL = cloneString(r.ImageURL)
	if r.TopSuggestion != nil {
		top := r.TopSuggestion.Clone()
		out.TopSuggestion = &top
	}
	if r.Suggestions != nil {
		out.Suggestions = make([]Suggestion, len(r.Suggestions))
		for i := range r.Suggestions {
			out.Suggestions[i] = r.Suggestions[i].Clone()
		}
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
