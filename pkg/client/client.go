// Package client runs job scripts on a chromeserver instance.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-resty/resty/v2"

	"github.com/shehryarbajwa/chromeserver/pkg/models"
)

// TokenEnv names the variable TokenFromEnv reads
const TokenEnv = "CHROMESERVER_AUTH_TOKEN"

// ErrNoData is returned when a successful job recorded no data
var ErrNoData = errors.New("no data in response JSON")

// AuthTokenObtainer resolves the bearer token sent with every job
type AuthTokenObtainer func() (string, error)

// StaticToken always returns token
func StaticToken(token string) AuthTokenObtainer {
	return func() (string, error) {
		return token, nil
	}
}

// TokenFromEnv reads the token from CHROMESERVER_AUTH_TOKEN
func TokenFromEnv() (string, error) {
	token := os.Getenv(TokenEnv)
	if token == "" {
		return "", fmt.Errorf("environment variable %s not set", TokenEnv)
	}
	return token, nil
}

// Options tweak a single job run
type Options struct {
	ErrorAutoScreenshot bool
	Params              map[string]string
}

// Client talks to one chromeserver base URL
type Client struct {
	http *resty.Client
}

// New creates a client. The token is resolved once, here.
func New(baseURL string, obtainAuthToken AuthTokenObtainer) (*Client, error) {
	token, err := obtainAuthToken()
	if err != nil {
		return nil, err
	}

	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(token),
	}, nil
}

// Run executes script and decodes the data it recorded into out. A job that
// failed is returned as an error carrying the script error and the rest of
// the response.
func (c *Client) Run(ctx context.Context, script string, out any, opts *Options) (*models.ClientOutput, error) {
	if opts == nil {
		opts = &Options{}
	}

	params := make(map[string]string, len(opts.Params)+1)
	if opts.ErrorAutoScreenshot {
		params["errorAutoScreenshot"] = "1"
	}
	for k, v := range opts.Params {
		params[k] = v
	}

	output := &models.ClientOutput{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetHeader("Content-Type", "application/javascript").
		SetBody(script).
		SetResult(output).
		Post("/job")
	if err != nil {
		return nil, fmt.Errorf("chromeserver: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("chromeserver: unexpected status %d: %s", resp.StatusCode(), resp.String())
	}

	if output.Error != nil {
		scriptError := *output.Error

		// the error is already in the message; don't repeat it in the JSON
		output.Error = nil

		rest, err := json.Marshal(output)
		if err != nil {
			return nil, err
		}

		return nil, fmt.Errorf("script error: %s\n\n%s", scriptError, rest)
	}

	if output.Data == nil {
		return nil, ErrNoData
	}

	dec := json.NewDecoder(bytes.NewReader(*output.Data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return output, fmt.Errorf("chromeserver: decode data: %w", err)
	}
	return output, nil
}
