package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/visualmatch/console/internal/domain"
)

// DefaultMaxPreviews is how many recent files keep a local preview
const DefaultMaxPreviews = 6

// Upload sources
const (
	SourcePicker = "picker"
	SourceDrop   = "drop"
	SourcePaste  = "paste"
)

// ErrUploaderClosed is returned by an upload controller after Close
var ErrUploaderClosed = errors.New("upload controller closed")

// UploadHandler receives every unified batch of files
type UploadHandler func(ctx context.Context, files []domain.ImageFile) error

// UploadOption configures an UploadController
type UploadOption func(*UploadController)

// WithMaxPreviews caps the number of live previews
func WithMaxPreviews(n int) UploadOption {
	return func(c *UploadController) {
		if n > 0 {
			c.maxPreviews = n
		}
	}
}

// WithMaxFileSize rejects files larger than n bytes. Zero disables the check.
func WithMaxFileSize(n int64) UploadOption {
	return func(c *UploadController) {
		c.maxFileSize = n
	}
}

// WithUploadLogger sets the controller logger
func WithUploadLogger(logger *zap.Logger) UploadOption {
	return func(c *UploadController) {
		c.logger = logger
	}
}

// UploadController unifies picker, drop and paste input into one file list,
// and owns the lifecycle of the previews it creates.
type UploadController struct {
	previews    PreviewStore
	handler     UploadHandler
	maxPreviews int
	maxFileSize int64
	logger      *zap.Logger

	mu          sync.Mutex
	active      []Preview
	unsubscribe func()
	closed      bool
}

// NewUploadController creates an upload controller
func NewUploadController(previews PreviewStore, handler UploadHandler, opts ...UploadOption) *UploadController {
	c := &UploadController{
		previews:    previews,
		handler:     handler,
		maxPreviews: DefaultMaxPreviews,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromPicker accepts files chosen in a native file picker
func (c *UploadController) FromPicker(ctx context.Context, files []domain.ImageFile) error {
	return c.accept(ctx, SourcePicker, files)
}

// FromDrop accepts files dropped on the upload target
func (c *UploadController) FromDrop(ctx context.Context, files []domain.ImageFile) error {
	return c.accept(ctx, SourceDrop, files)
}

// Mount listens for clipboard pastes at process level until Close
func (c *UploadController) Mount(src PasteSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrUploaderClosed
	}
	if c.unsubscribe != nil {
		return nil
	}
	c.unsubscribe = src.Subscribe(func(ctx context.Context, items []PasteItem) error {
		images := imagesFrom(items)
		if len(images) == 0 {
			return nil
		}
		return c.accept(ctx, SourcePaste, images)
	})
	return nil
}

// Previews returns the live previews, oldest first
func (c *UploadController) Previews() []Preview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Preview(nil), c.active...)
}

// Close stops listening for pastes and releases every remaining preview
func (c *UploadController) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	remaining := c.active
	c.active = nil
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	return c.release(context.Background(), remaining)
}

func (c *UploadController) accept(ctx context.Context, source string, files []domain.ImageFile) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: no image files", domain.ErrInvalidRequest)
	}
	for _, f := range files {
		if len(f.Data) == 0 {
			return fmt.Errorf("%w: %s is empty", domain.ErrInvalidRequest, f.Name)
		}
		if c.maxFileSize > 0 && int64(len(f.Data)) > c.maxFileSize {
			return fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrInvalidRequest, f.Name, c.maxFileSize)
		}
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrUploaderClosed
	}

	c.logger.Info("files received", zap.String("source", source), zap.Int("count", len(files)))

	c.addPreviews(ctx, files)
	return c.handler(ctx, files)
}

// addPreviews creates previews for the most recent files and evicts the oldest beyond the cap
func (c *UploadController) addPreviews(ctx context.Context, files []domain.ImageFile) {
	recent := files
	if len(recent) > c.maxPreviews {
		recent = recent[len(recent)-c.maxPreviews:]
	}

	created := make([]Preview, 0, len(recent))
	for _, f := range recent {
		p, err := c.previews.Create(ctx, f)
		if err != nil {
			c.logger.Warn("preview not created", zap.String("file", f.Name), zap.Error(err))
			continue
		}
		created = append(created, p)
	}

	c.mu.Lock()
	var evicted []Preview
	if c.closed {
		evicted = created
	} else {
		c.active = append(c.active, created...)
		if over := len(c.active) - c.maxPreviews; over > 0 {
			evicted = append(evicted, c.active[:over]...)
			c.active = append([]Preview(nil), c.active[over:]...)
		}
	}
	c.mu.Unlock()

	if err := c.release(ctx, evicted); err != nil {
		c.logger.Warn("preview release failed", zap.Error(err))
	}
}

func (c *UploadController) release(ctx context.Context, previews []Preview) error {
	var errs []error
	for _, p := range previews {
		if err := c.previews.Revoke(ctx, p.ID); err != nil {
			errs = append(errs, fmt.Errorf("revoke %s: %w", p.ID, err))
		}
	}
	return errors.Join(errs...)
}

func imagesFrom(items []PasteItem) []domain.ImageFile {
	var images []domain.ImageFile
	for _, item := range items {
		if item.File == nil || !strings.HasPrefix(item.ContentType, "image/") {
			continue
		}
		file := *item.File
		if file.ContentType == "" {
			file.ContentType = item.ContentType
		}
		images = append(images, file)
	}
	return images
}
