// Package script loads a job script as a CommonJS module and invokes its
// exported handler with the invocation context and a browser sandbox.
package script

import (
	"context"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/chromeserver/internal/browser"
)

// JobContext is the capability surface a running script gets. It can report
// through it but never reach the runner's own state.
type JobContext interface {
	ID() string
	Log(msg string)
	Error(msg string)
	RecordResult(v any)
	Result() any
	Params() map[string]string
	UploadArtifact(ctx context.Context, name string, payload []byte, contentType string) (string, error)
	Logger() *zap.Logger
}

// Unit is a loaded script ready to run once
type Unit interface {
	Run(ctx context.Context, job JobContext, sb browser.Sandbox) error
}

// Loader turns a script file into a Unit
type Loader interface {
	Load(path string) (Unit, error)
}

// LoadError is a failure while the script module itself is evaluated,
// before its handler is called
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string {
	return e.Err.Error()
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ExecutionError is a value thrown or rejected by the handler. Message is the
// value's JavaScript string form, e.g. "Error: element not found".
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return e.Message
}
