package archive

import (
	"context"
	"time"
)

// Source lists item IDs for a collection page. Pages are numbered from 1
// and IDs are returned in the remote order.
type Source interface {
	ListPage(ctx context.Context, collection Collection, page int) (Page, error)
}

// ItemFetcher retrieves an item and normalizes it into a Document using
// exactly one remote request.
type ItemFetcher interface {
	Fetch(ctx context.Context, itemID string) (Document, error)
}

// Store owns the output layout. Lookup reports the artifact path of an
// already archived item; only finished artifacts count.
type Store interface {
	Prepare(subfolder string) (string, error)
	Lookup(folder, itemID string) (path string, found bool, err error)
	WriteDocument(folder string, doc Document) (string, error)
	Remove(path string) error
}

// Converter renders an intermediate document into its final artifact and
// returns the artifact path.
type Converter interface {
	Convert(ctx context.Context, documentPath string) (string, error)
}

// FailureLog records terminal item failures.
type FailureLog interface {
	Record(itemID string, err error) error
}

// Mirror copies a finished artifact to secondary storage.
type Mirror interface {
	Mirror(ctx context.Context, artifactPath, key string) (string, error)
}

// Clock returns the current time and suspends the caller.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}
