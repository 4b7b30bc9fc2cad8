package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/k3a/html2text"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/logger"
)

// Seed file formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// SeedFile is the document layout accepted by Import:
//
//	species:
//	  - common_name: Swiss cheese plant
//	    scientific_name: Monstera deliciosa
//	    care_profile:
//	      light_requirement: partial_shade
type SeedFile struct {
	Species []Species `json:"species" yaml:"species"`
}

// ImportReport summarizes an import run.
type ImportReport struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Problems []string `json:"problems,omitempty"`
}

// FormatFromPath picks the seed format from a file extension, defaulting to YAML.
func FormatFromPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// ParseSeed decodes a seed document. An empty format sniffs JSON by a
// leading brace.
func ParseSeed(data []byte, format string) ([]Species, error) {
	if format == "" {
		format = FormatYAML
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
			format = FormatJSON
		}
	}

	var seed SeedFile
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &seed)
	case FormatYAML:
		err = yaml.Unmarshal(data, &seed)
	default:
		err = fmt.Errorf("unknown seed format %q", format)
	}
	if err != nil {
		return nil, errors.New(err).
			Component("catalog").
			Category(errors.CategoryValidation).
			Context("format", format).
			Build()
	}
	return seed.Species, nil
}

// Import validates and upserts entries. Invalid entries are skipped and
// reported; a database failure aborts the run.
func (r *Repository) Import(ctx context.Context, entries []Species) (ImportReport, error) {
	var report ImportReport
	for i := range entries {
		sp := entries[i]
		if problem := prepareSeedEntry(&sp); problem != "" {
			report.Skipped++
			report.Problems = append(report.Problems, fmt.Sprintf("entry %d: %s", i+1, problem))
			continue
		}
		if err := r.Upsert(ctx, &sp); err != nil {
			return report, err
		}
		report.Imported++
	}

	r.log.Info("Catalog import finished",
		logger.Int("imported", report.Imported),
		logger.Int("skipped", report.Skipped))
	return report, nil
}

// prepareSeedEntry cleans sp in place and returns a problem description
// when it cannot be imported.
func prepareSeedEntry(sp *Species) string {
	sp.ScientificName = strings.TrimSpace(sp.ScientificName)
	sp.CommonName = strings.TrimSpace(sp.CommonName)
	if sp.ScientificName == "" {
		return "scientific_name is required"
	}
	if sp.Description != "" {
		sp.Description = strings.TrimSpace(html2text.HTML2Text(sp.Description))
	}

	if cp := sp.CareProfile; cp != nil {
		if cp.LightRequirement != "" && !cp.LightRequirement.Valid() {
			return fmt.Sprintf("%s: unknown light requirement %q", sp.ScientificName, cp.LightRequirement)
		}
		if cp.Difficulty != "" && !cp.Difficulty.Valid() {
			return fmt.Sprintf("%s: unknown difficulty %q", sp.ScientificName, cp.Difficulty)
		}
		if cp.TemperatureMinC > cp.TemperatureMaxC && cp.TemperatureMaxC != 0 {
			return fmt.Sprintf("%s: temperature range is inverted", sp.ScientificName)
		}
	}
	return ""
}
