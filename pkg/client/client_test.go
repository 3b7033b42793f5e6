package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	Title string `json:"title"`
}

func newServer(t *testing.T, status int, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"logMessages":["hi"],"errorMessages":[],"data":{"title":"Example"},"error":null}`, func(r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/job", r.URL.Path)
		assert.Equal(t, "application/javascript", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.True(t, r.URL.Query().Has("errorAutoScreenshot"))
		assert.Equal(t, "v", r.URL.Query().Get("k"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "exports.handler = async () => {}", string(body))
	})

	c, err := New(srv.URL, StaticToken("secret"))
	require.NoError(t, err)

	var res result
	out, err := c.Run(context.Background(), "exports.handler = async () => {}", &res, &Options{
		ErrorAutoScreenshot: true,
		Params:              map[string]string{"k": "v"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Example", res.Title)
	assert.Equal(t, []string{"hi"}, out.LogMessages)
}

func TestRunScriptError(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"logMessages":["step"],"errorMessages":[],"data":null,"error":"Error: boom"}`, nil)

	c, err := New(srv.URL, StaticToken("x"))
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "", &result{}, nil)

	require.Error(t, err)
	assert.Equal(t, "script error: Error: boom\n\n{\"logMessages\":[\"step\"],\"errorMessages\":[]}", err.Error())
}

func TestRunNoData(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"logMessages":[],"errorMessages":[],"data":null,"error":null}`, nil)

	c, err := New(srv.URL, StaticToken("x"))
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "", &result{}, nil)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRunStrictData(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"logMessages":[],"errorMessages":[],"data":{"title":"a","extra":1},"error":null}`, nil)

	c, err := New(srv.URL, StaticToken("x"))
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "", &result{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extra")
}

func TestRunBadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Expecting application/javascript Content-Type", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := New(srv.URL, StaticToken("x"))
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "", &result{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}

func TestTokenFromEnv(t *testing.T) {
	t.Setenv(TokenEnv, "")
	_, err := TokenFromEnv()
	assert.Error(t, err)

	t.Setenv(TokenEnv, "tok")
	token, err := TokenFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	_, err = New("http://localhost", TokenFromEnv)
	assert.NoError(t, err)
}
