package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/visualmatch/console/internal/domain"
	"github.com/visualmatch/console/internal/usecase"
)

const (
	serviceName    = "visualmatch-console"
	serviceVersion = "1.0.0"

	defaultCatalogLimit = 24
	defaultMatchTopK     = 24
)

// PreviewReader serves stored preview blobs
type PreviewReader interface {
	Get(ctx context.Context, id string) (*domain.ImageFile, error)
}

// HandlerDeps lists the collaborators of the console API
type HandlerDeps struct {
	Session  *usecase.Session
	Filters  *usecase.FilterController
	Uploads  *usecase.UploadController
	Paste    *usecase.PasteBus
	Previews PreviewReader
	Theme    *usecase.ThemeSetting
	System   *usecase.SystemColorScheme
	Catalog  domain.CatalogClient
	Logger   *zap.Logger
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	session  *usecase.Session
	filters  *usecase.FilterController
	uploads  *usecase.UploadController
	paste    *usecase.PasteBus
	previews PreviewReader
	theme    *usecase.ThemeSetting
	system   *usecase.SystemColorScheme
	catalog  domain.CatalogClient
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(deps HandlerDeps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		session:  deps.Session,
		filters:  deps.Filters,
		uploads:  deps.Uploads,
		paste:    deps.Paste,
		previews: deps.Previews,
		theme:    deps.Theme,
		system:   deps.System,
		catalog:  deps.Catalog,
		logger:   logger,
	}
}

// HealthCheck returns the health status of the console itself
// along with the last known search API state.
func (h *Handler) HealthCheck(c *gin.Context) {
	resp := gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	}
	if h.session != nil {
		health := h.session.Snapshot().Health
		resp["searchApi"] = gin.H{
			"checked": health.Checked,
			"online":  health.Online,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GetSession returns a snapshot of the console state
func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// RefreshSession reruns the startup calls (health, categories, tags)
func (h *Handler) RefreshSession(c *gin.Context) {
	if err := h.session.Mount(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// GetResultsView returns the rendered results grid and detail panel
func (h *Handler) GetResultsView(c *gin.Context) {
	c.JSON(http.StatusOK, usecase.BuildResultsView(h.session.Snapshot()))
}

// SyncFilters replaces the filter panel state with an externally supplied one
func (h *Handler) SyncFilters(c *gin.Context) {
	var patch domain.FiltersPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	h.filters.Sync(patch)
	current := h.filters.Current()
	h.session.SetFilters(current)
	c.JSON(http.StatusOK, current)
}

// FilterActionRequest is one filter panel interaction
type FilterActionRequest struct {
	Action string `json:"action" binding:"required"`
	Value  string `json:"value"`
}

// ApplyFilterAction applies one filter panel interaction
func (h *Handler) ApplyFilterAction(c *gin.Context) {
	var req FilterActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: action is required"})
		return
	}

	filters, err := h.filters.Apply(req.Action, req.Value)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, filters)
}

// ClearFilters resets the filter panel to defaults
func (h *Handler) ClearFilters(c *gin.Context) {
	c.JSON(http.StatusOK, h.filters.Clear())
}

// SuggestFilters maps a free text query onto known filter values
func (h *Handler) SuggestFilters(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter q is required"})
		return
	}
	c.JSON(http.StatusOK, h.session.SuggestFilters(query))
}

// Upload accepts image files from the file picker or a drag-and-drop
func (h *Handler) Upload(c *gin.Context) {
	source := c.DefaultQuery("source", usecase.SourcePicker)

	var accept func(context.Context, []domain.ImageFile) error
	switch source {
	case usecase.SourcePicker:
		accept = h.uploads.FromPicker
	case usecase.SourceDrop:
		accept = h.uploads.FromDrop
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown upload source %q", source)})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected a multipart form"})
		return
	}
	files, err := readImageFiles(form.File["files"])
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := accept(c.Request.Context(), files); err != nil {
		h.respondError(c, err)
		return
	}
	h.respondSearch(c)
}

// Paste delivers clipboard contents to the process-level paste listeners
func (h *Handler) Paste(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected a multipart form"})
		return
	}

	files, err := readImageFiles(form.File["items"])
	if err != nil {
		h.respondError(c, err)
		return
	}
	items := make([]usecase.PasteItem, 0, len(files)+1)
	for i := range files {
		items = append(items, usecase.PasteItem{ContentType: files[i].ContentType, File: &files[i]})
	}
	for _, text := range form.Value["text"] {
		items = append(items, usecase.PasteItem{ContentType: "text/plain", Text: text})
	}

	delivered, err := h.paste.Publish(c.Request.Context(), items)
	if err != nil {
		h.respondError(c, err)
		return
	}

	snap := h.session.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"listeners": delivered,
		"previews":  h.uploads.Previews(),
		"results":   snap.Results,
		"toasts":    snap.Toasts,
	})
}

// CancelSearch aborts the in-flight search, if any
func (h *Handler) CancelSearch(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"canceled": h.session.CancelSearch()})
}

// TextSearchRequest is the payload of a free text search
type TextSearchRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"topK"`
}

// SearchText runs a text query against the catalog
func (h *Handler) SearchText(c *gin.Context) {
	var req TextSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: query is required"})
		return
	}
	if req.TopK <= 0 {
		req.TopK = defaultMatchTopK
	}

	resp, err := h.session.SearchText(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SearchImage matches a single uploaded image (multipart "file") against the catalog
func (h *Handler) SearchImage(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected a multipart form with a file field"})
		return
	}
	topK := defaultMatchTopK
	if raw := c.PostForm("topK"); raw != "" {
		topK, err = strconv.Atoi(raw)
		if err != nil || topK <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "topK must be a positive integer"})
			return
		}
	}

	files, err := readImageFiles([]*multipart.FileHeader{fh})
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp, err := h.session.SearchImage(c.Request.Context(), files[0], topK)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListCatalog pages through the indexed catalog
func (h *Handler) ListCatalog(c *gin.Context) {
	if h.catalog == nil {
		h.respondError(c, fmt.Errorf("%w: catalog listing", domain.ErrNotImplemented))
		return
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be an integer"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultCatalogLimit)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}

	items, err := h.catalog.ListItems(c.Request.Context(), offset, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"offset": offset,
		"limit":  limit,
	})
}

// GetProduct fetches one product from the search API
func (h *Handler) GetProduct(c *gin.Context) {
	product, err := h.session.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// FindSimilar is the "find similar" card action
func (h *Handler) FindSimilar(c *gin.Context) {
	if err := h.session.FindSimilar(c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SaveFavorite is the "save" card action
func (h *Handler) SaveFavorite(c *gin.Context) {
	if err := h.session.SaveFavorite(c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Select opens the detail panel for a product
func (h *Handler) Select(c *gin.Context) {
	product, err := h.session.Select(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// ClearSelection closes the detail panel
func (h *Handler) ClearSelection(c *gin.Context) {
	h.session.ClearSelection()
	c.Status(http.StatusNoContent)
}

// HandleKey forwards a keyboard event to the session
func (h *Handler) HandleKey(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"handled": h.session.HandleKey(c.Param("key"))})
}

// DismissToast removes a toast before it expires
func (h *Handler) DismissToast(c *gin.Context) {
	if !h.session.DismissToast(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Toast not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Precompute triggers a catalog reindex
func (h *Handler) Precompute(c *gin.Context) {
	ack, err := h.session.Precompute(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ack)
}

// ThemeRequest selects a color scheme
type ThemeRequest struct {
	Theme string `json:"theme" binding:"required"`
}

// GetTheme returns the applied theme
func (h *Handler) GetTheme(c *gin.Context) {
	h.respondTheme(c)
}

// SetTheme stores an explicit theme choice
func (h *Handler) SetTheme(c *gin.Context) {
	var req ThemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: theme is required"})
		return
	}
	if err := h.theme.Set(domain.Theme(req.Theme)); err != nil {
		h.respondError(c, err)
		return
	}
	h.respondTheme(c)
}

// ToggleTheme flips between light and dark
func (h *Handler) ToggleTheme(c *gin.Context) {
	if _, err := h.theme.Toggle(); err != nil {
		h.respondError(c, err)
		return
	}
	h.respondTheme(c)
}

// SetSystemTheme reports an OS color scheme change
func (h *Handler) SetSystemTheme(c *gin.Context) {
	var req ThemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: theme is required"})
		return
	}
	if err := h.system.Set(domain.Theme(req.Theme)); err != nil {
		h.respondError(c, err)
		return
	}
	h.respondTheme(c)
}

// GetPreview serves an uploaded image preview
func (h *Handler) GetPreview(c *gin.Context) {
	img, err := h.previews.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, img.ContentType, img.Data)
}

func (h *Handler) respondTheme(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"theme":    h.theme.Current(),
		"explicit": h.theme.Explicit(),
		"system":   h.system.Current(),
	})
}

// respondSearch returns the state a search leaves behind
func (h *Handler) respondSearch(c *gin.Context) {
	snap := h.session.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"results":  snap.Results,
		"toasts":   snap.Toasts,
		"previews": h.uploads.Previews(),
	})
}

// respondError maps err onto a status code and a user-facing message
func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		h.logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": domain.UserMessage(err)})
}

func statusFor(err error) int {
	var apiErr *domain.APIError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrCacheMiss):
		return http.StatusNotFound
	case domain.IsCanceled(err):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotImplemented):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrAPIUnavailable), errors.Is(err, usecase.ErrUploaderClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// readImageFiles loads multipart file parts into memory. A missing or generic
// content type is sniffed from the data.
func readImageFiles(headers []*multipart.FileHeader) ([]domain.ImageFile, error) {
	files := make([]domain.ImageFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
		}

		contentType := fh.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = http.DetectContentType(data)
		}
		files = append(files, domain.ImageFile{
			Name:        fh.Filename,
			ContentType: contentType,
			Data:        data,
		})
	}
	return files, nil
}
