package domain

import (
	"encoding/json"
	"fmt"
)

// SortKey selects the ordering of search results
type SortKey string

const (
	SortRelevance SortKey = "relevance"
	SortPriceAsc  SortKey = "price_asc"
	SortPriceDesc SortKey = "price_desc"
	SortNewest    SortKey = "newest"
)

// Valid reports whether k is one of the known sort keys
func (k SortKey) Valid() bool {
	switch k {
	case SortRelevance, SortPriceAsc, SortPriceDesc, SortNewest:
		return true
	}
	return false
}

// DefaultMaxPrice is the upper price bound used before the user narrows it
const DefaultMaxPrice = 1000

// PriceRange is a closed price interval. On the wire it is a two element array [min, max].
type PriceRange struct {
	Min float64
	Max float64
}

// Normalize returns the range with Min <= Max.
func (p PriceRange) Normalize() PriceRange {
	if p.Min > p.Max {
		return PriceRange{Min: p.Max, Max: p.Min}
	}
	return p
}

// MarshalJSON encodes the range as [min, max]
func (p PriceRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Min, p.Max})
}

// UnmarshalJSON accepts [min, max] and normalizes it
func (p *PriceRange) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("price range: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("price range: want 2 bounds, got %d", len(pair))
	}
	*p = PriceRange{Min: pair[0], Max: pair[1]}.Normalize()
	return nil
}

// Filters is the user-specified search refinement attached to each search request
type Filters struct {
	Query    string     `json:"q"`
	Category string     `json:"category,omitempty"`
	Price    PriceRange `json:"price"`
	Colors   []string   `json:"colors"`
	InStock  bool       `json:"inStock"`
	Tags     []string   `json:"tags"`
	Sort     SortKey    `json:"sort"`
}

// DefaultFilters returns the filter state used on startup and after a reset
func DefaultFilters() Filters {
	return Filters{
		Price:  PriceRange{Min: 0, Max: DefaultMaxPrice},
		Colors: []string{},
		Tags:   []string{},
		Sort:   SortRelevance,
	}
}

// Clone returns a deep copy so callers never share the color and tag slices
func (f Filters) Clone() Filters {
	out := f
	out.Colors = append(make([]string, 0, len(f.Colors)), f.Colors...)
	out.Tags = append(make([]string, 0, len(f.Tags)), f.Tags...)
	return out
}

// FiltersPatch is a partial filter state supplied from outside the filter panel.
// Nil fields keep their default value.
type FiltersPatch struct {
	Query    *string     `json:"q,omitempty"`
	Category *string     `json:"category,omitempty"`
	Price    *PriceRange `json:"price,omitempty"`
	Colors   []string    `json:"colors,omitempty"`
	InStock  *bool       `json:"inStock,omitempty"`
	Tags     []string    `json:"tags,omitempty"`
	Sort     *SortKey    `json:"sort,omitempty"`
}

// Apply overlays the patch on base and returns the result
func (p FiltersPatch) Apply(base Filters) Filters {
	out := base.Clone()
	if p.Query != nil {
		out.Query = *p.Query
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.Price != nil {
		out.Price = p.Price.Normalize()
	}
	if p.Colors != nil {
		out.Colors = unique(p.Colors)
	}
	if p.InStock != nil {
		out.InStock = *p.InStock
	}
	if p.Tags != nil {
		out.Tags = unique(p.Tags)
	}
	if p.Sort != nil && p.Sort.Valid() {
		out.Sort = *p.Sort
	}
	return out
}

// PatchFrom builds a patch that reproduces f exactly
func PatchFrom(f Filters) FiltersPatch {
	f = f.Clone()
	return FiltersPatch{
		Query:    &f.Query,
		Category: &f.Category,
		Price:    &f.Price,
		Colors:   f.Colors,
		InStock:  &f.InStock,
		Tags:     f.Tags,
		Sort:     &f.Sort,
	}
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}

func unique(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
