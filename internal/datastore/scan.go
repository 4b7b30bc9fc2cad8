package datastore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/plant"
)

// ScanRecord is an append-only log row for one completed identification.
type ScanRecord struct {
	ID                string             `gorm:"primaryKey;size:36"`
	UserID            *string            `gorm:"size:64;index"`
	ImageURL          string             `gorm:"size:2048"`
	ResultSpeciesID   *string            `gorm:"size:36"`
	ResultSpeciesName string             `gorm:"size:255"`
	Confidence        float64            `gorm:"index"`
	ThresholdMet      bool               `gorm:"not null"`
	Suggestions       []plant.Suggestion `gorm:"serializer:json;type:text"`
	Fingerprint       string             `gorm:"size:64;index"`
	CreatedAt         time.Time          `gorm:"index"`
}

// NewScanRecord maps a result into a row. The result's ScanID is used as the
// primary key when set, otherwise a new uuid is generated.
func NewScanRecord(result *plant.Result, fingerprint string, userID *string) *ScanRecord {
	id := result.ScanID
	if id == "" {
		id = uuid.NewString()
	}

	rec := &ScanRecord{
		ID:           id,
		UserID:       userID,
		Confidence:   result.Confidence,
		ThresholdMet: result.ThresholdMet,
		Fingerprint:  fingerprint,
	}
	if result.ImageURL != nil {
		rec.ImageURL = *result.ImageURL
	}
	if result.TopSuggestion != nil {
		rec.ResultSpeciesID = result.TopSuggestion.SpeciesID
		rec.ResultSpeciesName = result.TopSuggestion.ScientificName
	}
	rec.Suggestions = make([]plant.Suggestion, len(result.Suggestions))
	for i := range result.Suggestions {
		rec.Suggestions[i] = result.Suggestions[i].Clone()
	}
	return rec
}

// ToResult rebuilds the identification result stored in the row.
func (r *ScanRecord) ToResult() *plant.Result {
	res := &plant.Result{
		ScanID:       r.ID,
		Suggestions:  make([]plant.Suggestion, len(r.Suggestions)),
		ImageURL:     plant.StringPtr(r.ImageURL),
		ThresholdMet: r.ThresholdMet,
		Confidence:   r.Confidence,
	}
	for i := range r.Suggestions {
		res.Suggestions[i] = r.Suggestions[i].Clone()
	}
	if r.ThresholdMet && len(res.Suggestions) > 0 {
		top := res.Suggestions[0].Clone()
		res.TopSuggestion = &top
	}
	return res
}

// SaveScan inserts rec. Rows are never updated, so a duplicate id fails.
func (s *Store) SaveScan(ctx context.Context, rec *ScanRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := s.DB.WithContext(ctx).Create(rec).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_scan").
			Context("db_type", s.dbType).
			Build()
	}
	return nil
}

// GetScan loads a scan by id. A missing row is a CategoryNotFound error.
func (s *Store) GetScan(ctx context.Context, id string) (*ScanRecord, error) {
	var rec ScanRecord
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	switch {
	case err == nil:
		return &rec, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errors.Newf("scan %s not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	default:
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_scan").
			Build()
	}
}

// ListScans returns a user's most recent scans, newest first. A nil user
// lists anonymous scans.
func (s *Store) ListScans(ctx context.Context, userID *string, limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	q := s.DB.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if userID == nil {
		q = q.Where("user_id IS NULL")
	} else {
		q = q.Where("user_id = ?", *userID)
	}

	var recs []ScanRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "list_scans").
			Build()
	}
	return recs, nil
}
