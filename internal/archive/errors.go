package archive

import "fmt"

// CollectionFetchError reports a listing page that could not be retrieved.
// It aborts the traversal of that collection only.
type CollectionFetchError struct {
	Collection string
	Page       int
	Err        error
}

func (e *CollectionFetchError) Error() string {
	return fmt.Sprintf("list %s page %d: %v", e.Collection, e.Page, e.Err)
}

func (e *CollectionFetchError) Unwrap() error { return e.Err }

// FetchError reports that an item's content could not be retrieved, parsed
// or staged for conversion.
type FetchError struct {
	ItemID string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch item %s: %v", e.ItemID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ConversionError reports that rendering failed on every allowed attempt.
type ConversionError struct {
	ItemID   string
	Attempts int
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert item %s after %d attempts: %v", e.ItemID, e.Attempts, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
