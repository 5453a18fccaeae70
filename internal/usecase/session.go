package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/visualmatch/console/internal/domain"
)

// DefaultToastTTL is how long a toast stays visible
const DefaultToastTTL = 3200 * time.Millisecond

// Search outcomes reported to the SearchRecorder
const (
	OutcomeOK         = "ok"
	OutcomeEmpty      = "empty"
	OutcomeError      = "error"
	OutcomeCanceled   = "canceled"
	OutcomeSuperseded = "superseded"
)

// Toast messages
const (
	msgNoResults       = "No similar products found. Try another image or relax the filters."
	msgSimilarPending  = "Find similar is not available yet."
	msgFavoritePending = "Favorites are not available yet."
	msgPrecomputeOK    = "Catalog reindex started."
)

// FailurePolicy declares what a failed mount task does
type FailurePolicy int

const (
	// FailSurface reports the failure to the caller of Mount
	FailSurface FailurePolicy = iota
	// FailDefault keeps a default value and logs the failure
	FailDefault
)

func (p FailurePolicy) String() string {
	if p == FailSurface {
		return "surface"
	}
	return "default"
}

// MountTask is one independent startup call
type MountTask struct {
	Name   string
	Policy FailurePolicy
	Run    func(ctx context.Context) error
}

// TextSearcher runs a text query and returns results in the search envelope
type TextSearcher interface {
	MatchText(ctx context.Context, query string, topK int) (*domain.SearchResponse, error)
}

// ImageSearcher runs a single-image query and returns results in the search envelope
type ImageSearcher interface {
	MatchImage(ctx context.Context, file domain.ImageFile, topK int) (*domain.SearchResponse, error)
}

// SessionConfig holds optional session collaborators and settings
type SessionConfig struct {
	ToastTTL     time.Duration
	Recorder     domain.SearchRecorder
	Text         TextSearcher
	Image        ImageSearcher
	Preprocessor *QueryPreprocessor
	Suggester    *FilterSuggester
}

// HealthState is the persistent online/offline indicator
type HealthState struct {
	Checked   bool                 `json:"checked"`
	Online    bool                 `json:"online"`
	Status    *domain.HealthStatus `json:"status,omitempty"`
	Error     string               `json:"error,omitempty"`
	CheckedAt time.Time            `json:"checkedAt"`
}

// SessionSnapshot is a copy of the session state
type SessionSnapshot struct {
	Filters    domain.Filters         `json:"filters"`
	Results    *domain.SearchResponse `json:"results"`
	Health     HealthState            `json:"health"`
	Categories []string               `json:"categories"`
	Tags       []string               `json:"tags"`
	Toasts     []domain.Toast         `json:"toasts"`
	Selected   *domain.Product        `json:"selected"`
	Searching  bool                   `json:"searching"`
}

// Session owns the console's top-level state and issues the external calls
type Session struct {
	client       domain.SearchClient
	text         TextSearcher
	image        ImageSearcher
	preprocessor *QueryPreprocessor
	suggester    *FilterSuggester
	logger       *zap.Logger
	recorder     domain.SearchRecorder
	toastTTL     time.Duration

	mu          sync.Mutex
	filters     domain.Filters
	results     *domain.SearchResponse
	health      HealthState
	categories  []string
	tags        []string
	toasts      []domain.Toast
	timers      map[string]*time.Timer
	selected    *domain.Product
	searching   bool
	searchSeq   uint64
	canceledSeq uint64 // last search stopped by CancelSearch
	cancel      context.CancelFunc
	closed      bool
}

// NewSession creates a session with default filters and no results
func NewSession(client domain.SearchClient, logger *zap.Logger, cfg SessionConfig) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.ToastTTL
	if ttl <= 0 {
		ttl = DefaultToastTTL
	}
	preprocessor := cfg.Preprocessor
	if preprocessor == nil {
		preprocessor = NewQueryPreprocessor(logger)
	}
	suggester := cfg.Suggester
	if suggester == nil {
		suggester = NewFilterSuggester(SuggesterConfig{Logger: logger})
	}
	return &Session{
		client:       client,
		text:         cfg.Text,
		image:        cfg.Image,
		preprocessor: preprocessor,
		suggester:    suggester,
		logger:       logger,
		recorder:     cfg.Recorder,
		toastTTL:     ttl,
		filters:      domain.DefaultFilters(),
		categories:   []string{},
		tags:         []string{},
		timers:       make(map[string]*time.Timer),
	}
}

// Mount runs the startup tasks concurrently. Only failures of FailSurface
// tasks are returned; the rest leave their defaults in place.
func (s *Session) Mount(ctx context.Context) error {
	var g errgroup.Group
	for _, task := range s.mountTasks() {
		task := task
		g.Go(func() error {
			err := task.Run(ctx)
			if err == nil {
				return nil
			}
			if task.Policy == FailSurface {
				s.logger.Warn("mount task failed", zap.String("task", task.Name), zap.Error(err))
				return fmt.Errorf("%s: %w", task.Name, err)
			}
			s.logger.Debug("mount task defaulted", zap.String("task", task.Name), zap.Error(err))
			return nil
		})
	}
	return g.Wait()
}

func (s *Session) mountTasks() []MountTask {
	return []MountTask{
		{Name: "health", Policy: FailSurface, Run: s.checkHealth},
		{Name: "categories", Policy: FailDefault, Run: s.loadCategories},
		{Name: "tags", Policy: FailDefault, Run: s.loadTags},
	}
}

func (s *Session) checkHealth(ctx context.Context) error {
	status, err := s.client.Health(ctx)

	state := HealthState{Checked: true, Status: status, CheckedAt: time.Now()}
	switch {
	case err != nil:
		state.Error = err.Error()
	case !status.Healthy():
		state.Error = "search API reported unhealthy"
		err = fmt.Errorf("%w: %s", domain.ErrAPIUnavailable, state.Error)
	default:
		state.Online = true
	}

	s.mu.Lock()
	s.health = state
	s.mu.Unlock()
	return err
}

func (s *Session) loadCategories(ctx context.Context) error {
	values, err := s.client.ListCategories(ctx)
	if err != nil {
		values = []string{}
	}
	s.mu.Lock()
	s.categories = values
	s.mu.Unlock()
	return err
}

func (s *Session) loadTags(ctx context.Context) error {
	values, err := s.client.ListTags(ctx)
	if err != nil {
		values = []string{}
	}
	s.mu.Lock()
	s.tags = values
	s.mu.Unlock()
	return err
}

// Submit searches with the current filters and replaces the results wholesale.
// Any search still in flight is canceled and its result ignored.
func (s *Session) Submit(ctx context.Context, files []domain.ImageFile) (*domain.SearchResponse, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required", domain.ErrInvalidRequest)
	}
	return s.runSearch(ctx, func(ctx context.Context, filters domain.Filters) (*domain.SearchResponse, error) {
		return s.client.Search(ctx, files, &filters)
	})
}

// SearchText runs a text-to-image query and handles its result like Submit
func (s *Session) SearchText(ctx context.Context, query string, topK int) (*domain.SearchResponse, error) {
	if s.text == nil {
		return nil, domain.ErrNotImplemented
	}
	cleaned := s.preprocessor.PreprocessQuery(query)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidRequest)
	}
	return s.runSearch(ctx, func(ctx context.Context, _ domain.Filters) (*domain.SearchResponse, error) {
		return s.text.MatchText(ctx, cleaned, topK)
	})
}

// SearchImage matches one image against the whole catalog without filters.
// Its result replaces the current results like Submit.
func (s *Session) SearchImage(ctx context.Context, file domain.ImageFile, topK int) (*domain.SearchResponse, error) {
	if s.image == nil {
		return nil, domain.ErrNotImplemented
	}
	if len(file.Data) == 0 {
		return nil, fmt.Errorf("%w: image is empty", domain.ErrInvalidRequest)
	}
	return s.runSearch(ctx, func(ctx context.Context, _ domain.Filters) (*domain.SearchResponse, error) {
		return s.image.MatchImage(ctx, file, topK)
	})
}

// SuggestFilters maps a text query onto the loaded categories and tags
func (s *Session) SuggestFilters(query string) FilterSuggestion {
	s.mu.Lock()
	categories := append([]string{}, s.categories...)
	tags := append([]string{}, s.tags...)
	s.mu.Unlock()

	return s.suggester.Suggest(query, categories, tags)
}

func (s *Session) runSearch(ctx context.Context, search func(context.Context, domain.Filters) (*domain.SearchResponse, error)) (*domain.SearchResponse, error) {
	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: session closed", domain.ErrSearchCanceled)
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.searchSeq++
	seq := s.searchSeq
	s.cancel = cancel
	s.searching = true
	filters := s.filters.Clone()
	s.mu.Unlock()

	start := time.Now()
	resp, err := search(searchCtx, filters)
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq == s.canceledSeq {
		s.observeSearch(OutcomeCanceled, elapsed)
		return nil, fmt.Errorf("%w: canceled by user", domain.ErrSearchCanceled)
	}
	if seq != s.searchSeq {
		s.observeSearch(OutcomeSuperseded, elapsed)
		return nil, fmt.Errorf("%w: superseded by a newer search", domain.ErrSearchCanceled)
	}
	s.searching = false
	s.cancel = nil

	switch {
	case err != nil && domain.IsCanceled(err):
		s.observeSearch(OutcomeCanceled, elapsed)
		return nil, err
	case err != nil:
		s.observeSearch(OutcomeError, elapsed)
		s.logger.Warn("search failed", zap.Error(err))
		s.pushToastLocked(domain.ToastError, domain.UserMessage(err))
		return nil, err
	}

	if resp == nil {
		resp = &domain.SearchResponse{}
	}
	if resp.Items == nil {
		resp.Items = []domain.Product{}
	}
	s.results = resp
	if len(resp.Items) == 0 {
		s.observeSearch(OutcomeEmpty, elapsed)
		s.pushToastLocked(domain.ToastInfo, msgNoResults)
	} else {
		s.observeSearch(OutcomeOK, elapsed)
	}
	s.logger.Info("search finished", zap.Int("items", len(resp.Items)), zap.Duration("elapsed", elapsed))
	return cloneResponse(resp), nil
}

// CancelSearch aborts the in-flight search, if any. Its result is ignored
// and no toast is shown.
func (s *Session) CancelSearch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	s.canceledSeq = s.searchSeq
	s.searchSeq++
	s.searching = false
	return true
}

// SetFilters replaces the filters used by the next search
func (s *Session) SetFilters(f domain.Filters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = f.Clone()
}

// Filters returns the current filters
func (s *Session) Filters() domain.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters.Clone()
}

// Select opens the detail view for a product. Products outside the current
// results are fetched from the API.
func (s *Session) Select(ctx context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	if s.results != nil {
		for i := range s.results.Items {
			if s.results.Items[i].ID == id {
				p := s.results.Items[i]
				s.selected = &p
				s.mu.Unlock()
				return &p, nil
			}
		}
	}
	s.mu.Unlock()

	p, err := s.client.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.selected = p
	s.mu.Unlock()
	return p, nil
}

// GetProduct fetches a product without changing the selection
func (s *Session) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.client.GetProduct(ctx, id)
}

// ClearSelection closes the detail view
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
}

// HandleKey reacts to a key press and reports whether it was handled
func (s *Session) HandleKey(key string) bool {
	if key != "Escape" {
		return false
	}
	s.ClearSelection()
	return true
}

// FindSimilar has no backend endpoint yet
func (s *Session) FindSimilar(id string) error {
	s.PushToast(domain.ToastInfo, msgSimilarPending)
	return fmt.Errorf("%w: find similar for %s", domain.ErrNotImplemented, id)
}

// SaveFavorite has no backend endpoint yet
func (s *Session) SaveFavorite(id string) error {
	s.PushToast(domain.ToastInfo, msgFavoritePending)
	return fmt.Errorf("%w: favorite %s", domain.ErrNotImplemented, id)
}

// Precompute triggers a catalog reindex and reports the outcome as a toast
func (s *Session) Precompute(ctx context.Context) (*domain.PrecomputeAck, error) {
	ack, err := s.client.Precompute(ctx)
	if err != nil {
		s.PushToast(domain.ToastError, domain.UserMessage(err))
		return nil, err
	}
	s.PushToast(domain.ToastSuccess, msgPrecomputeOK)
	return ack, nil
}

// PushToast shows a toast that expires after the configured TTL
func (s *Session) PushToast(kind domain.ToastKind, message string) domain.Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushToastLocked(kind, message)
}

func (s *Session) pushToastLocked(kind domain.ToastKind, message string) domain.Toast {
	toast := domain.Toast{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		CreatedAt: time.Now(),
	}
	s.toasts = append(s.toasts, toast)
	if !s.closed {
		id := toast.ID
		s.timers[id] = time.AfterFunc(s.toastTTL, func() { s.DismissToast(id) })
	}
	if s.recorder != nil {
		s.recorder.ObserveToast(kind)
	}
	return toast
}

// DismissToast removes a toast and reports whether it was still visible
func (s *Session) DismissToast(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	for i, toast := range s.toasts {
		if toast.ID == id {
			s.toasts = append(s.toasts[:i:i], s.toasts[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the current state
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SessionSnapshot{
		Filters:    s.filters.Clone(),
		Results:    cloneResponse(s.results),
		Health:     s.health,
		Categories: append([]string{}, s.categories...),
		Tags:       append([]string{}, s.tags...),
		Toasts:     append([]domain.Toast{}, s.toasts...),
		Searching:  s.searching,
	}
	if s.selected != nil {
		p := *s.selected
		snap.Selected = &p
	}
	return snap
}

// Close cancels any search and stops toast expiry timers
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	return nil
}

func (s *Session) observeSearch(outcome string, d time.Duration) {
	if s.recorder != nil {
		s.recorder.ObserveSearch(outcome, d)
	}
}

func cloneResponse(r *domain.SearchResponse) *domain.SearchResponse {
	if r == nil {
		return nil
	}
	out := *r
	out.Items = append([]domain.Product{}, r.Items...)
	return &out
}
