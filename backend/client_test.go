package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/llmrelay/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTagsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

const tagsBody = `{"models":[
	{"name":"deepseek-r1:1.5b","model":"deepseek-r1:1.5b","size":1117322599,"digest":"a42b"},
	{"name":"gemma:2b","modified_at":"2024-05-01T10:00:00Z"}
]}`

func TestClient_Tags(t *testing.T) {
	srv := newTagsServer(t, http.StatusOK, tagsBody)
	c := NewClient(srv.Client(), srv.URL+"/", "/api/tags", zap.NewNop())

	models, err := c.Tags(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "deepseek-r1:1.5b", models[0].Name)
	assert.Equal(t, int64(1117322599), models[0].Size)

	has, err := c.HasModel(context.Background(), "gemma:2b")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = c.HasModel(context.Background(), "gemma")
	require.NoError(t, err)
	assert.False(t, has, "names match exactly")
}

func TestClient_NonOKStatus(t *testing.T) {
	srv := newTagsServer(t, http.StatusBadGateway, "oops")
	c := NewClient(srv.Client(), srv.URL, "/api/tags", zap.NewNop())

	_, err := c.Installed(context.Background())
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Equal(t, "backend status 502", se.Error())

	assert.Error(t, c.Ping(context.Background()))
}

func TestClient_MalformedBody(t *testing.T) {
	srv := newTagsServer(t, http.StatusOK, "{not json")
	c := NewClient(srv.Client(), srv.URL, "/api/tags", zap.NewNop())

	_, err := c.Tags(context.Background())
	assert.ErrorContains(t, err, "decode tags")
	// Ping 只关心状态码
	assert.NoError(t, c.Ping(context.Background()))
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(nil, url, "/api/tags", nil)
	err := c.Ping(context.Background())
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

func TestGenerateURL(t *testing.T) {
	cfg := config.DefaultBackendConfig()
	assert.Equal(t, "http://localhost:11434/api/generate", GenerateURL(cfg))

	cfg.BaseURL = "http://ollama:11434/"
	assert.Equal(t, "http://ollama:11434/api/generate", GenerateURL(cfg))
}

func TestNewClientFromConfig(t *testing.T) {
	srv := newTagsServer(t, http.StatusOK, tagsBody)
	cfg := config.DefaultBackendConfig()
	cfg.BaseURL = srv.URL

	c := NewClientFromConfig(cfg, zap.NewNop())
	set, err := c.Installed(context.Background())
	require.NoError(t, err)
	assert.True(t, set["deepseek-r1:1.5b"])
}
