package usecase

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/visualmatch/console/internal/domain"
)

// Filter actions accepted by FilterController.Apply
const (
	FilterActionQuery       = "query"
	FilterActionCategory    = "category"
	FilterActionPriceMin    = "priceMin"
	FilterActionPriceMax    = "priceMax"
	FilterActionToggleColor = "toggleColor"
	FilterActionToggleTag   = "toggleTag"
	FilterActionInStock     = "inStock"
	FilterActionSort        = "sort"
	FilterActionClear       = "clear"
)

// FilterController keeps a local copy of the filter state and reports every
// change, as a complete Filters value, through onChange.
type FilterController struct {
	mu       sync.Mutex
	state    domain.Filters
	onChange func(domain.Filters)
}

// NewFilterController seeds the local state from defaults overlaid with seed
func NewFilterController(seed domain.FiltersPatch, onChange func(domain.Filters)) *FilterController {
	if onChange == nil {
		onChange = func(domain.Filters) {}
	}
	return &FilterController{
		state:    seed.Apply(domain.DefaultFilters()),
		onChange: onChange,
	}
}

// Current returns a copy of the local state
func (c *FilterController) Current() domain.Filters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Sync replaces the local copy after the external value changed. It does not notify.
func (c *FilterController) Sync(external domain.FiltersPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = external.Apply(domain.DefaultFilters())
}

// SetQuery sets the free-text query
func (c *FilterController) SetQuery(q string) domain.Filters {
	return c.update(func(f *domain.Filters) { f.Query = q })
}

// SetCategory sets the category; empty clears it
func (c *FilterController) SetCategory(category string) domain.Filters {
	return c.update(func(f *domain.Filters) { f.Category = category })
}

// SetPriceMin edits the lower bound. Non-numeric input becomes 0.
func (c *FilterController) SetPriceMin(raw string) domain.Filters {
	value := coercePrice(raw)
	return c.update(func(f *domain.Filters) {
		f.Price = domain.PriceRange{Min: value, Max: f.Price.Max}.Normalize()
	})
}

// SetPriceMax edits the upper bound. Non-numeric input becomes 0.
func (c *FilterController) SetPriceMax(raw string) domain.Filters {
	value := coercePrice(raw)
	return c.update(func(f *domain.Filters) {
		f.Price = domain.PriceRange{Min: f.Price.Min, Max: value}.Normalize()
	})
}

// ToggleColor adds color when absent and removes it when present
func (c *FilterController) ToggleColor(color string) domain.Filters {
	return c.update(func(f *domain.Filters) { f.Colors = toggle(f.Colors, color) })
}

// ToggleTag adds tag when absent and removes it when present
func (c *FilterController) ToggleTag(tag string) domain.Filters {
	return c.update(func(f *domain.Filters) { f.Tags = toggle(f.Tags, tag) })
}

// SetInStock sets the in-stock-only flag
func (c *FilterController) SetInStock(inStock bool) domain.Filters {
	return c.update(func(f *domain.Filters) { f.InStock = inStock })
}

// SetSort sets the sort key. Unknown keys fall back to relevance.
func (c *FilterController) SetSort(key domain.SortKey) domain.Filters {
	if !key.Valid() {
		key = domain.SortRelevance
	}
	return c.update(func(f *domain.Filters) { f.Sort = key })
}

// Clear resets every field to its default
func (c *FilterController) Clear() domain.Filters {
	return c.update(func(f *domain.Filters) { *f = domain.DefaultFilters() })
}

// Apply dispatches a named action, as sent by the console API
func (c *FilterController) Apply(action, value string) (domain.Filters, error) {
	switch action {
	case FilterActionQuery:
		return c.SetQuery(value), nil
	case FilterActionCategory:
		return c.SetCategory(value), nil
	case FilterActionPriceMin:
		return c.SetPriceMin(value), nil
	case FilterActionPriceMax:
		return c.SetPriceMax(value), nil
	case FilterActionToggleColor:
		return c.ToggleColor(value), nil
	case FilterActionToggleTag:
		return c.ToggleTag(value), nil
	case FilterActionInStock:
		inStock, err := strconv.ParseBool(value)
		if err != nil {
			return domain.Filters{}, fmt.Errorf("%w: inStock expects a boolean, got %q", domain.ErrInvalidRequest, value)
		}
		return c.SetInStock(inStock), nil
	case FilterActionSort:
		return c.SetSort(domain.SortKey(value)), nil
	case FilterActionClear:
		return c.Clear(), nil
	}
	return domain.Filters{}, fmt.Errorf("%w: unknown filter action %q", domain.ErrInvalidRequest, action)
}

// update applies fn under the lock and notifies outside it
func (c *FilterController) update(fn func(*domain.Filters)) domain.Filters {
	c.mu.Lock()
	next := c.state.Clone()
	fn(&next)
	c.state = next
	emitted := next.Clone()
	c.mu.Unlock()

	c.onChange(emitted)
	return emitted.Clone()
}

func coercePrice(raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return value
}

// toggle returns values with v removed if present, appended otherwise
func toggle(values []string, v string) []string {
	out := make([]string, 0, len(values)+1)
	found := false
	for _, existing := range values {
		if existing == v {
			found = true
			continue
		}
		out = append(out, existing)
	}
	if !found {
		out = append(out, v)
	}
	return out
}
