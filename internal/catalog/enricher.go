package catalog

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/plantid/internal/logger"
	"github.com/tphakala/plantid/internal/plant"
)

const (
	DefaultTopN        = 5
	DefaultConcurrency = 4
)

// Lookup outcomes reported to the Observer.
const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeError = "error"
)

// Lookuper resolves a scientific name to a catalog species.
type Lookuper interface {
	Lookup(ctx context.Context, scientificName string) (*Species, bool, error)
}

// Observer receives one call per catalog lookup.
type Observer interface {
	ObserveEnrichment(outcome string)
}

// EnricherConfig bounds enrichment work.
type EnricherConfig struct {
	TopN        int
	Concurrency int
}

// Enricher attaches catalog data to classifier suggestions.
type Enricher struct {
	lookup      Lookuper
	topN        int
	concurrency int
	observer    Observer
	log         logger.Logger
}

// NewEnricher returns an enricher backed by lookup. observer may be nil.
func NewEnricher(lookup Lookuper, cfg EnricherConfig, observer Observer, log logger.Logger) *Enricher {
	if log == nil {
		log = logger.Global().Module("catalog")
	}
	if cfg.TopN <= 0 {
		cfg.TopN = DefaultTopN
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Enricher{
		lookup:      lookup,
		topN:        cfg.TopN,
		concurrency: cfg.Concurrency,
		observer:    observer,
		log:         log,
	}
}

// TopN is the number of suggestions Enrich keeps.
func (e *Enricher) TopN() int { return e.topN }

// Enrich looks up the first TopN suggestions concurrently. Output order
// matches input order. A failed lookup leaves that suggestion unenriched;
// Enrich itself never fails.
func (e *Enricher) Enrich(ctx context.Context, raw []plant.RawSuggestion) []plant.Suggestion {
	raw = raw[:min(len(raw), e.topN)]
	out := make([]plant.Suggestion, len(raw))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, s := range raw {
		g.Go(func() error {
			out[i] = e.enrichOne(ctx, s)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (e *Enricher) enrichOne(ctx context.Context, raw plant.RawSuggestion) plant.Suggestion {
	sp, found, err := e.lookup.Lookup(ctx, raw.ScientificName)
	switch {
	case err != nil:
		e.observe(OutcomeError)
		e.log.Warn("Catalog lookup failed, returning unenriched suggestion",
			logger.String("scientific_name", raw.ScientificName),
			logger.Error(err))
		return plant.FromRaw(raw)
	case !found:
		e.observe(OutcomeMiss)
		e.log.Debug("Species not in catalog", logger.String("scientific_name", raw.ScientificName))
		return plant.FromRaw(raw)
	default:
		e.observe(OutcomeHit)
		return sp.Enrich(raw)
	}
}

func (e *Enricher) observe(outcome string) {
	if e.observer != nil {
		e.observer.ObserveEnrichment(outcome)
	}
}
