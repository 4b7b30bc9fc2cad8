package classifier

import (
	"sort"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/tphakala/plantid/internal/plant"
)

// parseResponse maps a classifier body to ranked suggestions. Two shapes are
// understood:
//
//	{"results": [{"score": 0.9, "species": {"scientificNameWithoutAuthor": "...", "commonNames": ["..."]}}]}
//	{"suggestions": [{"scientific_name": "...", "common_name": "...", "score": 0.9}]}
func parseResponse(body []byte) ([]plant.RawSuggestion, error) {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, &decodeError{Reason: "body is not a JSON object", Err: err}
	}

	var out []plant.RawSuggestion
	switch {
	case has(obj, "results"):
		results, err := obj.GetObjectArray("results")
		if err != nil {
			return nil, &decodeError{Reason: "results is not an array of objects", Err: err}
		}
		out = make([]plant.RawSuggestion, 0, len(results))
		for _, r := range results {
			if s, ok := fromPlantNet(r); ok {
				out = append(out, s)
			}
		}
	case has(obj, "suggestions"):
		suggestions, err := obj.GetObjectArray("suggestions")
		if err != nil {
			return nil, &decodeError{Reason: "suggestions is not an array of objects", Err: err}
		}
		out = make([]plant.RawSuggestion, 0, len(suggestions))
		for _, r := range suggestions {
			if s, ok := fromLegacy(r); ok {
				out = append(out, s)
			}
		}
	default:
		return nil, &decodeError{Reason: "unrecognized response shape"}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func has(obj *jason.Object, key string) bool {
	_, err := obj.GetValue(key)
	return err == nil
}

func fromPlantNet(r *jason.Object) (plant.RawSuggestion, bool) {
	name, err := r.GetString("species", "scientificNameWithoutAuthor")
	if err != nil || strings.TrimSpace(name) == "" {
		full, ferr := r.GetString("species", "scientificName")
		if ferr != nil {
			return plant.RawSuggestion{}, false
		}
		name = plant.StripAuthority(full)
	}
	name = plant.NormalizeScientificName(name)
	if name == "" {
		return plant.RawSuggestion{}, false
	}

	var common string
	if names, err := r.GetStringArray("species", "commonNames"); err == nil && len(names) > 0 {
		common = strings.TrimSpace(names[0])
	}

	score, _ := r.GetFloat64("score")
	return newSuggestion(name, common, score), true
}

func fromLegacy(r *jason.Object) (plant.RawSuggestion, bool) {
	name, err := r.GetString("scientific_name")
	if err != nil {
		return plant.RawSuggestion{}, false
	}
	name = plant.NormalizeScientificName(name)
	if name == "" {
		return plant.RawSuggestion{}, false
	}
	common, _ := r.GetString("common_name")
	score, _ := r.GetFloat64("score")
	return newSuggestion(name, strings.TrimSpace(common), score), true
}

func newSuggestion(scientific, common string, score float64) plant.RawSuggestion {
	if common == "" {
		common = scientific
	}
	return plant.RawSuggestion{
		ScientificName: scientific,
		CommonName:     common,
		Score:          min(max(score, 0), 1),
	}
}

// parseErrorObject returns the "message" of a JSON error body.
func parseErrorObject(body []byte) (string, error) {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return "", err
	}
	return obj.GetString("message")
}
