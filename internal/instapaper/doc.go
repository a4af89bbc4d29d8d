// Package instapaper adapts an Instapaper account to the archive pipeline:
// it logs in, lists the home and folder collections page by page, and turns
// an article's reader view into an archive.Document.
package instapaper
