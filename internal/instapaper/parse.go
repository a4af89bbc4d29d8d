package instapaper

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/paper-archiver/internal/archive"
)

// ErrMissingContent reports a page that lacks a region the parser depends
// on. An expired session usually shows up this way because the login page
// is served instead.
var ErrMissingContent = errors.New("missing expected content")

const articleIDPrefix = "article_"

// ParseListing extracts the article IDs of a collection page in document
// order and whether an older page exists.
func ParseListing(r io.Reader) (archive.Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return archive.Page{}, fmt.Errorf("parse listing: %w", err)
	}
	list := doc.Find("#article_list").First()
	if list.Length() == 0 {
		return archive.Page{}, fmt.Errorf("%w: #article_list", ErrMissingContent)
	}

	ids := make([]string, 0, 40)
	list.Find("article").Each(func(_ int, s *goquery.Selection) {
		raw, ok := s.Attr("id")
		if !ok || !strings.HasPrefix(raw, articleIDPrefix) {
			return
		}
		if id := strings.TrimPrefix(raw, articleIDPrefix); id != "" {
			ids = append(ids, id)
		}
	})

	return archive.Page{
		IDs:     ids,
		HasMore: doc.Find(".paginate_older").Length() > 0,
	}, nil
}

// ParseArticle builds a Document from an article's reader view. The title
// and origin are trimmed text; the story body is kept as markup.
func ParseArticle(r io.Reader, itemID string) (archive.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return archive.Document{}, fmt.Errorf("parse article: %w", err)
	}

	titlebar := doc.Find("#titlebar").First()
	if titlebar.Length() == 0 {
		return archive.Document{}, fmt.Errorf("%w: #titlebar", ErrMissingContent)
	}
	title := titlebar.Find("h1").First()
	if title.Length() == 0 {
		return archive.Document{}, fmt.Errorf("%w: #titlebar h1", ErrMissingContent)
	}
	origin := titlebar.Find(".origin_line").First()
	if origin.Length() == 0 {
		return archive.Document{}, fmt.Errorf("%w: #titlebar .origin_line", ErrMissingContent)
	}
	story := doc.Find("#story").First()
	if story.Length() == 0 {
		return archive.Document{}, fmt.Errorf("%w: #story", ErrMissingContent)
	}
	body, err := story.Html()
	if err != nil {
		return archive.Document{}, fmt.Errorf("render #story: %w", err)
	}

	return archive.Document{
		ID:     itemID,
		Title:  strings.TrimSpace(title.Text()),
		Origin: strings.TrimSpace(origin.Text()),
		Body:   strings.TrimSpace(body),
	}, nil
}
