package searchapi

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/visualmatch/console/internal/domain"
)

// MaxItemsPageSize is the largest page GET /items accepts
const MaxItemsPageSize = 200

// resolveItems rewrites relative image URLs (the backend serves them under /images/)
// to absolute URLs on the API host.
func (c *Client) resolveItems(items []domain.CatalogItem) []domain.CatalogItem {
	if items == nil {
		return []domain.CatalogItem{}
	}
	for i := range items {
		items[i].URL = ResolveURL(c.baseURL, items[i].URL)
	}
	return items
}

// ResolveURL joins ref onto base unless ref is already absolute
func ResolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil || refURL.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(strings.TrimRight(base, "/") + "/")
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// MapCatalogItemToProduct converts a matcher result into a Product.
// The filename doubles as the identifier and, without its extension, as the title.
// Matcher scores are cosine similarities, so the distance is 1 - score.
func MapCatalogItemToProduct(item domain.CatalogItem) domain.Product {
	title := strings.TrimSuffix(item.Filename, path.Ext(item.Filename))
	product := domain.Product{
		ID:       item.Filename,
		Title:    title,
		ImageURL: item.URL,
	}
	if item.Score != nil {
		distance := 1 - *item.Score
		product.DistanceScore = &distance
	}
	return product
}

// MapMatchToSearchResponse converts a matcher response into the search envelope
func MapMatchToSearchResponse(match *domain.MatchResponse) *domain.SearchResponse {
	if match == nil {
		return &domain.SearchResponse{Items: []domain.Product{}}
	}
	items := make([]domain.Product, 0, len(match.Results))
	for _, result := range match.Results {
		items = append(items, MapCatalogItemToProduct(result))
	}
	return &domain.SearchResponse{Items: items, Total: match.Total}
}

// MatchText runs a text query and returns the matches as a search envelope.
// Cancellation errors wrap domain.ErrSearchCanceled like Search does.
func (c *Client) MatchText(ctx context.Context, query string, topK int) (*domain.SearchResponse, error) {
	match, err := c.SearchText(ctx, query, topK)
	if err != nil {
		return nil, canceledOr(ctx, err)
	}
	return MapMatchToSearchResponse(match), nil
}

// MatchImage runs a single-image query and returns the matches as a search envelope
func (c *Client) MatchImage(ctx context.Context, file domain.ImageFile, topK int) (*domain.SearchResponse, error) {
	match, err := c.SearchImage(ctx, file, topK)
	if err != nil {
		return nil, canceledOr(ctx, err)
	}
	return MapMatchToSearchResponse(match), nil
}
