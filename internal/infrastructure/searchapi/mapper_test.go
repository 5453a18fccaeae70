package searchapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visualmatch/console/internal/domain"
)

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		ref  string
		want string
	}{
		{name: "relative image path", base: "http://localhost:8000", ref: "/images/a.jpg", want: "http://localhost:8000/images/a.jpg"},
		{name: "base with trailing slash", base: "http://api/", ref: "images/b.png", want: "http://api/images/b.png"},
		{name: "absolute url untouched", base: "http://api", ref: "https://cdn.example.com/c.jpg", want: "https://cdn.example.com/c.jpg"},
		{name: "empty ref", base: "http://api", ref: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveURL(tt.base, tt.ref))
		})
	}
}

func TestMapCatalogItemToProduct(t *testing.T) {
	score := 0.88
	product := MapCatalogItemToProduct(domain.CatalogItem{
		Filename: "red_shoe.jpg",
		URL:      "http://api/images/red_shoe.jpg",
		Score:    &score,
	})

	assert.Equal(t, "red_shoe.jpg", product.ID)
	assert.Equal(t, "red_shoe", product.Title)
	assert.Equal(t, "http://api/images/red_shoe.jpg", product.ImageURL)
	require.NotNil(t, product.DistanceScore)
	assert.InDelta(t, 0.12, *product.DistanceScore, 1e-9)
	assert.Nil(t, product.Price)
}

func TestMapMatchToSearchResponse_Nil(t *testing.T) {
	resp := MapMatchToSearchResponse(nil)
	assert.NotNil(t, resp.Items)
	assert.Empty(t, resp.Items)
}

func TestMatchText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search-text", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total":1,"top_k":5,"results":[{"filename":"bag.jpg","url":"/images/bag.jpg","score":0.5}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.MatchText(context.Background(), "leather bag", 5)

	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "bag", resp.Items[0].Title)
	assert.Equal(t, server.URL+"/images/bag.jpg", resp.Items[0].ImageURL)
}

func TestMatchText_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("http://127.0.0.1:1")
	_, err := client.MatchText(ctx, "anything", 0)

	assert.ErrorIs(t, err, domain.ErrSearchCanceled)
}

func TestMatchImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search-image", r.URL.Path)
		assert.Equal(t, "4", r.URL.Query().Get("top_k"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"total":1,"top_k":4,"results":[{"filename":"sneaker.jpg","url":"/images/sneaker.jpg","score":0.8}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	resp, err := client.MatchImage(context.Background(), domain.ImageFile{Name: "q.jpg", Data: []byte("x")}, 4)

	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "sneaker", resp.Items[0].Title)
	assert.Equal(t, server.URL+"/images/sneaker.jpg", resp.Items[0].ImageURL)
}

func TestMatchImage_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("http://127.0.0.1:1")
	_, err := client.MatchImage(ctx, domain.ImageFile{Name: "q.jpg", Data: []byte("x")}, 0)

	assert.ErrorIs(t, err, domain.ErrSearchCanceled)
}
