package instapaper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-archiver/internal/archive"
)

// DefaultBaseURL is the Instapaper web origin.
const DefaultBaseURL = "https://www.instapaper.com/"

// HomeCollection is the name given to the unfiled article list.
const HomeCollection = "home"

// Session performs authenticated requests.
type Session interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
	PostForm(ctx context.Context, rawURL string, fields map[string]string) error
}

// Category is an Instapaper folder.
type Category struct {
	Name string `mapstructure:"name" yaml:"name"`
	ID   int64  `mapstructure:"id" yaml:"id"`
}

// Client implements archive.Source and archive.ItemFetcher.
type Client struct {
	session Session
	base    string
	logger  *zap.Logger
}

// New creates a Client for the Instapaper instance at baseURL.
func New(session Session, baseURL string, logger *zap.Logger) (*Client, error) {
	if session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		session: session,
		base:    strings.TrimSuffix(u.String(), "/") + "/",
		logger:  logger,
	}, nil
}

// Login establishes the session. The account credentials are only sent in
// the form body.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}
	err := c.session.PostForm(ctx, c.base+"user/login", map[string]string{
		"username":       username,
		"password":       password,
		"keep_logged_in": "yes",
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.logger.Info("logged in", zap.String("base_url", c.base))
	return nil
}

// Home returns the unfiled article collection.
func (c *Client) Home() archive.Collection {
	return archive.Collection{Name: HomeCollection, URL: c.base + "u/"}
}

// Folder returns the collection of a category, archived into a subfolder
// named after it.
func (c *Client) Folder(category Category) archive.Collection {
	return archive.Collection{
		Name:      category.Name,
		URL:       fmt.Sprintf("%su/folder/%d/%s/", c.base, category.ID, url.PathEscape(category.Name)),
		Subfolder: category.Name,
	}
}

// Collections returns the home collection (when requested) followed by one
// collection per category, in order.
func (c *Client) Collections(includeHome bool, categories []Category) []archive.Collection {
	collections := make([]archive.Collection, 0, len(categories)+1)
	if includeHome {
		collections = append(collections, c.Home())
	}
	for _, category := range categories {
		collections = append(collections, c.Folder(category))
	}
	return collections
}

// ItemURL returns the reader view URL of an article.
func (c *Client) ItemURL(itemID string) string {
	return c.base + "read/" + url.PathEscape(itemID)
}

// ListPage fetches page (1-based) of a collection.
func (c *Client) ListPage(ctx context.Context, collection archive.Collection, page int) (archive.Page, error) {
	if page < 1 {
		return archive.Page{}, fmt.Errorf("page must be >= 1, got %d", page)
	}
	body, err := c.session.Get(ctx, collection.URL+strconv.Itoa(page))
	if err != nil {
		return archive.Page{}, err
	}
	listing, err := ParseListing(bytes.NewReader(body))
	if err != nil {
		return archive.Page{}, fmt.Errorf("%s page %d: %w", collection.Name, page, err)
	}
	return listing, nil
}

// Fetch retrieves one article with a single request.
func (c *Client) Fetch(ctx context.Context, itemID string) (archive.Document, error) {
	itemURL := c.ItemURL(itemID)
	c.logger.Debug("fetching item", zap.String("item_id", itemID), zap.String("url", itemURL))
	body, err := c.session.Get(ctx, itemURL)
	if err != nil {
		return archive.Document{}, err
	}
	return ParseArticle(bytes.NewReader(body), itemID)
}
