package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/chromeserver/internal/invocation"
	"github.com/shehryarbajwa/chromeserver/internal/storage"
	"github.com/shehryarbajwa/chromeserver/pkg/models"
)

const (
	// JobPath is the only path jobs are accepted on
	JobPath = "/job"
	// ContentTypeJavaScript is the required request content type
	ContentTypeJavaScript = "application/javascript"
)

// JobRunner executes one invocation and returns its result record
type JobRunner interface {
	Run(ctx context.Context, inv *invocation.Context, source string) models.Output
}

// AdapterOptions configures an Adapter
type AdapterOptions struct {
	Runner JobRunner
	// Store receives uploaded artifacts. Nil means uploads are not configured.
	Store          storage.Store
	ArtifactPrefix string
	Logger         *zap.Logger
}

// Adapter turns HTTP-shaped events into job invocations
type Adapter struct {
	runner         JobRunner
	store          storage.Store
	artifactPrefix string
	logger         *zap.Logger
}

// NewAdapter creates an adapter
func NewAdapter(opts AdapterOptions) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := opts.Store
	if store == nil {
		store = storage.Unconfigured{}
	}
	return &Adapter{
		runner:         opts.Runner,
		store:          store,
		artifactPrefix: opts.ArtifactPrefix,
		logger:         logger,
	}
}

// Handle validates ev, runs the job it carries and renders the result.
// Only malformed requests get a non-200 status; job failures are reported
// in the JSON body.
func (a *Adapter) Handle(ctx context.Context, ev models.Event) models.Response {
	if ev.HTTPMethod != http.MethodPost {
		return badRequest(fmt.Sprintf("Invalid method: %s", ev.HTTPMethod))
	}
	if ev.Path != JobPath {
		return badRequest(fmt.Sprintf("Invalid path: %s", ev.Path))
	}
	if ct, _ := ev.Header("Content-Type"); ct != ContentTypeJavaScript {
		return badRequest("Expecting application/javascript Content-Type")
	}

	source := ev.Body
	if ev.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(ev.Body)
		if err != nil {
			return badRequest("Invalid base64 body")
		}
		source = string(decoded)
	}

	inv := invocation.New(invocation.Options{
		Params:         ev.QueryParameters,
		Store:          a.store,
		ArtifactPrefix: a.artifactPrefix,
		Logger:         a.logger,
	})

	out := a.runner.Run(ctx, inv, source)

	body, err := out.MarshalPretty()
	if err != nil {
		a.logger.Error("failed to encode job output", zap.String("invocation_id", inv.ID()), zap.Error(err))
		return models.Response{
			StatusCode: http.StatusInternalServerError,
			Headers:    map[string]string{"Content-Type": "text/plain"},
			Body:       "failed to encode job output",
		}
	}

	return models.Response{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func badRequest(text string) models.Response {
	return models.Response{
		StatusCode: http.StatusBadRequest,
		Headers:    map[string]string{"Content-Type": "text/plain"},
		Body:       text,
	}
}
