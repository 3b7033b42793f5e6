// Package invocation holds the per-invocation record a job script reports through.
package invocation

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/chromeserver/internal/storage"
	"github.com/shehryarbajwa/chromeserver/pkg/models"
)

// AutoScreenshotParam enables failure screenshots when present in the params
const AutoScreenshotParam = "errorAutoScreenshot"

// NewID returns a UUIDv7: a millisecond timestamp followed by random bits.
// The string form sorts in creation order and is safe as a path segment.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Context is the mutable record of one invocation. It is never reused.
type Context struct {
	id            string
	params        map[string]string
	store         storage.Store
	artifactScope string
	logger        *zap.Logger

	mu            sync.Mutex
	logMessages   []string
	errorMessages []string
	data          any
	err           *string
	screenshotURL *string
}

// Options configures a Context
type Options struct {
	ID     string
	Params map[string]string
	Store  storage.Store
	// ArtifactPrefix namespaces uploaded artifacts
	ArtifactPrefix string
	Logger         *zap.Logger
}

// New creates the context of a fresh invocation
func New(opts Options) *Context {
	id := opts.ID
	if id == "" {
		id = NewID()
	}
	store := opts.Store
	if store == nil {
		store = storage.Unconfigured{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	params := make(map[string]string, len(opts.Params))
	maps.Copy(params, opts.Params)

	return &Context{
		id:            id,
		params:        params,
		store:         store,
		artifactScope: opts.ArtifactPrefix,
		logger:        logger.With(zap.String("invocation_id", id)),
		logMessages:   []string{},
		errorMessages: []string{},
	}
}

// ID identifies the invocation
func (c *Context) ID() string {
	return c.id
}

// Logger is the invocation-scoped logger
func (c *Context) Logger() *zap.Logger {
	return c.logger
}

// Log appends a log message and mirrors it to the process log
func (c *Context) Log(msg string) {
	c.mu.Lock()
	c.logMessages = append(c.logMessages, msg)
	c.mu.Unlock()

	c.logger.Info(msg, zap.String("source", "job"))
}

// Error appends an error message and mirrors it to the process log
func (c *Context) Error(msg string) {
	c.mu.Lock()
	c.errorMessages = append(c.errorMessages, msg)
	c.mu.Unlock()

	c.logger.Error(msg, zap.String("source", "job"))
}

// RecordResult sets the result payload, replacing any earlier value
func (c *Context) RecordResult(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = v
}

// Result returns the recorded payload, or nil
func (c *Context) Result() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// Params returns a copy of the request parameters
func (c *Context) Params() map[string]string {
	return maps.Clone(c.params)
}

// Param looks up one request parameter
func (c *Context) Param(key string) (string, bool) {
	v, ok := c.params[key]
	return v, ok
}

// AutoScreenshot reports whether a failure screenshot was requested
func (c *Context) AutoScreenshot() bool {
	_, ok := c.params[AutoScreenshotParam]
	return ok
}

// UploadArtifact stores payload under this invocation's namespace and returns its URL.
// Uploading the same name twice overwrites the first object.
func (c *Context) UploadArtifact(ctx context.Context, name string, payload []byte, contentType string) (string, error) {
	if err := storage.ValidateName(name); err != nil {
		return "", err
	}
	key := storage.Key(c.artifactScope, c.id, name)

	url, err := c.store.Put(ctx, key, payload, contentType)
	if err != nil {
		return "", err
	}

	c.logger.Info("artifact uploaded", zap.String("key", key), zap.Int("bytes", len(payload)))
	return url, nil
}

// Fail records the top-level error of the invocation
func (c *Context) Fail(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = &msg
}

// Failed reports whether a top-level error was recorded
func (c *Context) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err != nil
}

// SetScreenshotURL records where the failure screenshot was uploaded
func (c *Context) SetScreenshotURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.screenshotURL = &url
}

// Output snapshots the context into the response record
func (c *Context) Output() models.Output {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := models.Output{
		LogMessages:   append([]string{}, c.logMessages...),
		ErrorMessages: append([]string{}, c.errorMessages...),
		Data:          c.data,
	}
	if c.err != nil {
		msg := *c.err
		out.Error = &msg
	}
	if c.screenshotURL != nil {
		url := *c.screenshotURL
		out.ErrorAutoScreenshotURL = &url
	}
	return out
}
