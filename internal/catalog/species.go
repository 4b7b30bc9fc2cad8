// Package catalog is the local species catalog: care profiles and
// descriptions keyed by scientific name, used to enrich classifier output.
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/plant"
)

const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

// Species is a catalog row. ScientificName is stored NFC-normalized.
type Species struct {
	ID             string             `gorm:"primaryKey;size:36" json:"id" yaml:"id"`
	CommonName     string             `gorm:"size:255;index" json:"common_name" yaml:"common_name"`
	ScientificName string             `gorm:"size:255;uniqueIndex" json:"scientific_name" yaml:"scientific_name"`
	Category       string             `gorm:"size:64" json:"category" yaml:"category"`
	Description    string             `gorm:"type:text" json:"description" yaml:"description"`
	ImageURLs      []string           `gorm:"serializer:json;type:text" json:"image_urls" yaml:"image_urls"`
	Tags           []string           `gorm:"serializer:json;type:text" json:"tags" yaml:"tags"`
	CareProfile    *plant.CareProfile `gorm:"serializer:json;type:text" json:"care_profile" yaml:"care_profile"`
	CreatedAt      time.Time          `json:"-" yaml:"-"`
	UpdatedAt      time.Time          `json:"-" yaml:"-"`
}

// TableName keeps the table name stable regardless of gorm naming rules.
func (Species) TableName() string { return "species" }

// Enrich overlays catalog data onto a classifier suggestion. The local
// common name wins when present.
func (s *Species) Enrich(raw plant.RawSuggestion) plant.Suggestion {
	out := plant.FromRaw(raw)
	id := s.ID
	out.SpeciesID = &id
	if s.CommonName != "" {
		out.CommonName = s.CommonName
	}
	out.Description = plant.StringPtr(s.Description)
	out.CareProfile = s.CareProfile.Clone()
	if len(s.ImageURLs) > 0 {
		out.ImageURL = plant.StringPtr(s.ImageURLs[0])
	}
	return out
}

// Repository reads and writes the species table.
type Repository struct {
	db  *gorm.DB
	log logger.Logger
}

// NewRepository migrates the species table on db and returns a repository.
func NewRepository(db *gorm.DB, log logger.Logger) (*Repository, error) {
	if log == nil {
		log = logger.Global().Module("catalog")
	}
	if err := db.AutoMigrate(&Species{}); err != nil {
		return nil, errors.Newf("failed to migrate species table: %w", err).
			Component("catalog").
			Category(errors.CategoryDatabase).
			Build()
	}
	return &Repository{db: db, log: log}, nil
}

// Lookup finds a species by exact scientific name. found is false on a miss.
func (r *Repository) Lookup(ctx context.Context, scientificName string) (species *Species, found bool, err error) {
	name := plant.NormalizeScientificName(scientificName)
	if name == "" {
		return nil, false, nil
	}

	var sp Species
	err = r.db.WithContext(ctx).Where("scientific_name = ?", name).First(&sp).Error
	switch {
	case err == nil:
		return &sp, true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, nil
	default:
		return nil, false, errors.New(err).
			Component("catalog").
			Category(errors.CategoryDatabase).
			Context("operation", "lookup").
			Build()
	}
}

// Get loads a species by id.
func (r *Repository) Get(ctx context.Context, id string) (*Species, error) {
	var sp Species
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sp).Error
	switch {
	case err == nil:
		return &sp, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errors.Newf("species %s not found", id).
			Component("catalog").
			Category(errors.CategoryNotFound).
			Build()
	default:
		return nil, errors.New(err).Component("catalog").Category(errors.CategoryDatabase).Build()
	}
}

// Search matches query as a case-insensitive substring of the common or
// scientific name, ordered by common name. total counts all matches
// ignoring limit and offset.
func (r *Repository) Search(ctx context.Context, query string, limit, offset int) (results []Species, total int64, err error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	limit = min(limit, MaxSearchLimit)
	offset = max(offset, 0)

	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"
	matching := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&Species{}).
			Where("LOWER(common_name) LIKE ? ESCAPE '!' OR LOWER(scientific_name) LIKE ? ESCAPE '!'", pattern, pattern)
	}

	if err := matching().Count(&total).Error; err != nil {
		return nil, 0, r.searchError(err)
	}
	if err := matching().Order("common_name ASC").Order("scientific_name ASC").Limit(limit).Offset(offset).Find(&results).Error; err != nil {
		return nil, 0, r.searchError(err)
	}
	return results, total, nil
}

func (r *Repository) searchError(err error) error {
	return errors.New(err).
		Component("catalog").
		Category(errors.CategoryDatabase).
		Context("operation", "search").
		Build()
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

// Upsert inserts sp or updates the row with the same scientific name.
func (r *Repository) Upsert(ctx context.Context, sp *Species) error {
	sp.ScientificName = plant.NormalizeScientificName(sp.ScientificName)
	if sp.ScientificName == "" {
		return errors.NewStd("species scientific name is required")
	}
	if sp.ID == "" {
		sp.ID = uuid.NewString()
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "scientific_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"common_name", "category", "description", "image_urls", "tags", "care_profile", "updated_at",
			}),
		}).
		Create(sp).Error
	if err != nil {
		return errors.New(err).
			Component("catalog").
			Category(errors.CategoryDatabase).
			Context("operation", "upsert").
			Context("scientific_name", sp.ScientificName).
			Build()
	}
	return nil
}

// Count returns the number of catalog species.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Species{}).Count(&n).Error
	return n, err
}
