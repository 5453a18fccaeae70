package domain

import "time"

// Product is a catalog item returned by the search API
type Product struct {
	ID            string                 `json:"id"`
	Title         string                 `json:"title"`
	ImageURL      string                 `json:"imageUrl"`
	Price         *float64               `json:"price,omitempty"`
	Badges        []string               `json:"badges,omitempty"`
	DistanceScore *float64               `json:"distanceScore,omitempty"` // lower = more similar
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// SearchResponse is the result envelope for one search call
type SearchResponse struct {
	Items  []Product `json:"items"`
	Total  int       `json:"total"`
	TookMs *float64  `json:"tookMs,omitempty"`
}

// ImageFile is one image captured by the upload controller
type ImageFile struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// HealthStatus is the payload of GET /health.
// Besides status/uptime/version it accepts the fields the matcher backend reports.
type HealthStatus struct {
	Status      string          `json:"status,omitempty"`
	Uptime      *float64        `json:"uptime,omitempty"`
	Version     string          `json:"version,omitempty"`
	OK          *bool           `json:"ok,omitempty"`
	Device      string          `json:"device,omitempty"`
	Model       *ModelInfo      `json:"model,omitempty"`
	Embeddings  *EmbeddingsInfo `json:"embeddings,omitempty"`
	FaissLoaded *bool           `json:"faiss_loaded,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// ModelInfo names the embedding model loaded by the backend
type ModelInfo struct {
	Name       string `json:"name"`
	Pretrained string `json:"pretrained"`
}

// EmbeddingsInfo describes the backend's embedding matrix
type EmbeddingsInfo struct {
	Count int `json:"count"`
	Dim   int `json:"dim"`
}

// Healthy reports whether the payload describes a working backend
func (h *HealthStatus) Healthy() bool {
	if h == nil {
		return false
	}
	if h.OK != nil {
		return *h.OK
	}
	return h.Status == "" || h.Status == "ok"
}

// PrecomputeAck acknowledges a reindex trigger
type PrecomputeAck struct {
	OK        bool       `json:"ok"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	TookMs    *float64   `json:"tookMs,omitempty"`
}

// CatalogItem is one indexed image as listed by the matcher endpoints
type CatalogItem struct {
	Filename string   `json:"filename"`
	URL      string   `json:"url"`
	Score    *float64 `json:"score,omitempty"`
}

// MatchResponse is returned by /search-text and /search-image
type MatchResponse struct {
	Total   int           `json:"total"`
	TopK    int           `json:"top_k"`
	Results []CatalogItem `json:"results"`
}
