// Package archive implements the sequential archival pipeline: it walks
// paginated collections, skips items that already have an artifact on disk,
// and drives each remaining item through fetch, render and conversion while
// keeping the outbound request rate at or below one item per interval.
package archive
