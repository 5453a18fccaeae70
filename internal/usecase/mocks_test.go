package usecase

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/visualmatch/console/internal/domain"
)

// MockCacheRepository is a mock implementation of domain.CacheRepository
type MockCacheRepository struct {
	mu          sync.Mutex
	data        map[string][]byte
	setError    error
	deleteCalls int
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		data: make(map[string][]byte),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, domain.ErrCacheMiss
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setError != nil {
		return m.setError
	}
	m.data[key] = value
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	delete(m.data, key)
	return nil
}

func (m *MockCacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

// countingPreviewStore records how often each preview is released
type countingPreviewStore struct {
	mu       sync.Mutex
	next     int
	created  []string
	released map[string]int
}

func newCountingPreviewStore() *countingPreviewStore {
	return &countingPreviewStore{released: make(map[string]int)}
}

func (s *countingPreviewStore) Create(ctx context.Context, file domain.ImageFile) (Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := file.Name + "#" + strconv.Itoa(s.next)
	s.created = append(s.created, id)
	return Preview{ID: id, URL: "/previews/" + id, Name: file.Name}, nil
}

func (s *countingPreviewStore) Revoke(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released[id]++
	return nil
}

func (s *countingPreviewStore) releaseCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released[id]
}

// MockSearchClient is a testify mock of domain.SearchClient
type MockSearchClient struct {
	mock.Mock
}

func (m *MockSearchClient) Health(ctx context.Context) (*domain.HealthStatus, error) {
	args := m.Called(ctx)
	status, _ := args.Get(0).(*domain.HealthStatus)
	return status, args.Error(1)
}

func (m *MockSearchClient) ListCategories(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	values, _ := args.Get(0).([]string)
	return values, args.Error(1)
}

func (m *MockSearchClient) ListTags(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	values, _ := args.Get(0).([]string)
	return values, args.Error(1)
}

func (m *MockSearchClient) Search(ctx context.Context, files []domain.ImageFile, filters *domain.Filters) (*domain.SearchResponse, error) {
	args := m.Called(ctx, files, filters)
	resp, _ := args.Get(0).(*domain.SearchResponse)
	return resp, args.Error(1)
}

func (m *MockSearchClient) Precompute(ctx context.Context) (*domain.PrecomputeAck, error) {
	args := m.Called(ctx)
	ack, _ := args.Get(0).(*domain.PrecomputeAck)
	return ack, args.Error(1)
}

func (m *MockSearchClient) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	args := m.Called(ctx, id)
	product, _ := args.Get(0).(*domain.Product)
	return product, args.Error(1)
}

// MockPreferenceStore is an in-memory domain.PreferenceStore
type MockPreferenceStore struct {
	values   map[string]string
	setError error
}

func NewMockPreferenceStore() *MockPreferenceStore {
	return &MockPreferenceStore{values: make(map[string]string)}
}

func (m *MockPreferenceStore) Get(key string) (string, error) {
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return "", domain.ErrPreferenceNotSet
}

func (m *MockPreferenceStore) Set(key, value string) error {
	if m.setError != nil {
		return m.setError
	}
	m.values[key] = value
	return nil
}
