// Package storage writes invocation artifacts to durable object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotConfigured is returned when no upload destination is configured
var ErrNotConfigured = errors.New("artifact bucket not configured (set BUCKET_NAME)")

// Store persists a payload under key and returns a publicly resolvable URL for it.
// Writing an existing key overwrites it.
type Store interface {
	Put(ctx context.Context, key string, payload []byte, contentType string) (string, error)
}

// Unconfigured is the Store used when no bucket is set
type Unconfigured struct{}

// Put always fails with ErrNotConfigured
func (Unconfigured) Put(context.Context, string, []byte, string) (string, error) {
	return "", ErrNotConfigured
}

// ErrInvalidName is returned for artifact names that would escape their namespace
var ErrInvalidName = errors.New("invalid artifact name")

// ValidateName rejects empty names and names with "." or ".." segments, which
// would make the object URL resolve outside the invocation's namespace
func ValidateName(name string) error {
	if strings.Trim(name, "/") == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == "." || segment == ".." {
			return fmt.Errorf("%w: %q contains a dot segment", ErrInvalidName, name)
		}
	}
	return nil
}

// Key joins a namespace, invocation ID and artifact name into an object key
func Key(prefix, invocationID, name string) string {
	return strings.Trim(prefix, "/") + "/" + invocationID + "/" + strings.TrimLeft(name, "/")
}

// escapeKey escapes every path segment of key for use in a URL
func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
