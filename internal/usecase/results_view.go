package usecase

import (
	"fmt"
	"sort"

	"github.com/visualmatch/console/internal/domain"
)

// SkeletonCards is how many placeholder cards a loading grid shows
const SkeletonCards = 8

// ProductCard is the display form of one result
type ProductCard struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	ImageURL   string   `json:"imageUrl"`
	PriceLabel string   `json:"priceLabel,omitempty"`
	ScoreLabel string   `json:"scoreLabel,omitempty"`
	Badges     []string `json:"badges"`
}

// MetadataRow is one key/value line of the detail view
type MetadataRow struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ProductDetail is the expanded view of the selected product
type ProductDetail struct {
	ProductCard
	Metadata []MetadataRow `json:"metadata"`
}

// ResultsView is what the results area renders
type ResultsView struct {
	Loading      bool           `json:"loading"`
	Skeletons    int            `json:"skeletons"`
	Cards        []ProductCard  `json:"cards"`
	Total        int            `json:"total"`
	ElapsedLabel string         `json:"elapsedLabel,omitempty"`
	Detail       *ProductDetail `json:"detail"`
}

// BuildResultsView derives the results area from a session snapshot.
// While a search is in flight the grid shows skeletons instead of stale results.
func BuildResultsView(snap SessionSnapshot) ResultsView {
	view := ResultsView{Cards: []ProductCard{}}

	if snap.Searching {
		view.Loading = true
		view.Skeletons = SkeletonCards
	} else if snap.Results != nil {
		for _, p := range snap.Results.Items {
			view.Cards = append(view.Cards, cardFor(p))
		}
		view.Total = snap.Results.Total
		if snap.Results.TookMs != nil {
			view.ElapsedLabel = fmt.Sprintf("%.0f ms", *snap.Results.TookMs)
		}
	}

	if snap.Selected != nil {
		view.Detail = detailFor(*snap.Selected)
	}
	return view
}

// FormatPrice renders a price as "$49.99". A missing price renders as "".
func FormatPrice(price *float64) string {
	if price == nil {
		return ""
	}
	return fmt.Sprintf("$%.2f", *price)
}

// FormatScore renders a similarity distance with three decimals
func FormatScore(distance *float64) string {
	if distance == nil {
		return ""
	}
	return fmt.Sprintf("%.3f", *distance)
}

func cardFor(p domain.Product) ProductCard {
	badges := append([]string{}, p.Badges...)
	return ProductCard{
		ID:         p.ID,
		Title:      p.Title,
		ImageURL:   p.ImageURL,
		PriceLabel: FormatPrice(p.Price),
		ScoreLabel: FormatScore(p.DistanceScore),
		Badges:     badges,
	}
}

func detailFor(p domain.Product) *ProductDetail {
	keys := make([]string, 0, len(p.Metadata))
	for k := range p.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]MetadataRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, MetadataRow{Key: k, Value: fmt.Sprint(p.Metadata[k])})
	}
	return &ProductDetail{ProductCard: cardFor(p), Metadata: rows}
}
