package archive

import "time"

// Collection is a named, paginated group of items. The home collection has
// an empty Subfolder.
type Collection struct {
	Name      string
	URL       string
	Subfolder string
}

// Page is one listing page of a collection.
type Page struct {
	IDs     []string
	HasMore bool
}

// Document is the intermediate representation of an item, built from the
// item detail page and handed to the converter.
type Document struct {
	ID     string
	Title  string
	Origin string
	// Body is opaque markup and is never re-parsed.
	Body string
}

// Stem returns the deterministic filename stem for the document.
func (d Document) Stem() string {
	return Sanitize(d.ID, d.Title)
}

// Outcome is the terminal state of one item within a run.
type Outcome string

// Per-item outcomes.
const (
	OutcomeSkipped          Outcome = "skipped"
	OutcomeDone             Outcome = "done"
	OutcomeFetchFailed      Outcome = "fetch_failed"
	OutcomeConversionFailed Outcome = "conversion_failed"
)

// ItemResult describes what happened to a single item.
type ItemResult struct {
	ID           string
	Outcome      Outcome
	ArtifactPath string
	Attempts     int
	Duration     time.Duration
	Err          error
}

// CollectionStats aggregates item outcomes for one collection traversal.
type CollectionStats struct {
	Collection string
	Pages      int
	Skipped    int
	Done       int
	Failed     int
}

func (s *CollectionStats) add(res ItemResult) {
	switch res.Outcome {
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeDone:
		s.Done++
	case OutcomeFetchFailed, OutcomeConversionFailed:
		s.Failed++
	}
}

// RunStats aggregates every collection of a run. Errors holds the
// collection-level failures keyed by collection name.
type RunStats struct {
	Collections []CollectionStats
	Errors      map[string]error
}

// Totals sums item counts across collections.
func (r RunStats) Totals() CollectionStats {
	var total CollectionStats
	for _, c := range r.Collections {
		total.Pages += c.Pages
		total.Skipped += c.Skipped
		total.Done += c.Done
		total.Failed += c.Failed
	}
	return total
}
