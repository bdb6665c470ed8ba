package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/llmrelay/api"
	"github.com/BaSui01/llmrelay/backend"
	"github.com/BaSui01/llmrelay/config"
	"github.com/BaSui01/llmrelay/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInventory struct {
	installed map[string]bool
	err       error
}

func (f fakeInventory) Installed(context.Context) (map[string]bool, error) {
	return f.installed, f.err
}

type fakeInstaller struct {
	err   error
	calls []string
}

func (f *fakeInstaller) Install(_ context.Context, model string) error {
	f.calls = append(f.calls, model)
	return f.err
}

var testCatalog = []config.CatalogEntry{
	{Name: "tinyllama", Description: "Compact chat model", Size: "637MB"},
	{Name: "phi", Description: "Small reasoning model", Size: "1.6GB"},
}

func newModelMux(inv Inventory, inst ModelInstaller) *http.ServeMux {
	h := NewModelHandler(inv, inst, []string{"llama3", "mistral"}, testCatalog, zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/check_model", h.HandleCheckModel)
	mux.HandleFunc("POST /api/install_model", h.HandleInstallModel)
	mux.HandleFunc("GET /api/check_all_models", h.HandleCheckAllModels)
	mux.HandleFunc("GET /api/list_small_models", h.HandleListSmallModels)
	return mux
}

// tagsServer 返回固定模型清单或指定状态码的假后端
func tagsServer(t *testing.T, status int, names ...string) *backend.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		var tags backend.TagsResponse
		for _, n := range names {
			tags.Models = append(tags.Models, backend.ModelInfo{Name: n})
		}
		_ = json.NewEncoder(w).Encode(tags)
	}))
	t.Cleanup(srv.Close)
	return backend.NewClient(srv.Client(), srv.URL, "/api/tags", zap.NewNop())
}

func TestModelHandler_CheckModel(t *testing.T) {
	t.Run("installed", func(t *testing.T) {
		mux := newModelMux(tagsServer(t, http.StatusOK, "llama3"), &fakeInstaller{})
		w := serve(mux, http.MethodPost, "/api/check_model", `{"model":"llama3"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"exists":true}`, w.Body.String())
	})

	t.Run("missing", func(t *testing.T) {
		mux := newModelMux(tagsServer(t, http.StatusOK, "llama3"), &fakeInstaller{})
		w := serve(mux, http.MethodPost, "/api/check_model", `{"model":"llama3:70b"}`)
		assert.JSONEq(t, `{"exists":false}`, w.Body.String())
	})

	t.Run("backend status", func(t *testing.T) {
		mux := newModelMux(tagsServer(t, http.StatusBadGateway), &fakeInstaller{})
		w := serve(mux, http.MethodPost, "/api/check_model", `{"model":"llama3"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"exists":false,"error":"Failed to check models: 502"}`, w.Body.String())
	})

	t.Run("connection error", func(t *testing.T) {
		mux := newModelMux(fakeInventory{err: errors.New("dial tcp: connection refused")}, &fakeInstaller{})
		w := serve(mux, http.MethodPost, "/api/check_model", `{"model":"llama3"}`)
		assert.JSONEq(t, `{"exists":false,"error":"dial tcp: connection refused"}`, w.Body.String())
	})

	t.Run("empty model", func(t *testing.T) {
		mux := newModelMux(fakeInventory{}, &fakeInstaller{})
		w := serve(mux, http.MethodPost, "/api/check_model", `{"model":"  "}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestModelHandler_InstallModel(t *testing.T) {
	t.Run("started", func(t *testing.T) {
		inst := &fakeInstaller{}
		mux := newModelMux(fakeInventory{}, inst)
		w := serve(mux, http.MethodPost, "/api/install_model", `{"model":"phi"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"message":"Model phi installation started"}`, w.Body.String())
		assert.Equal(t, []string{"phi"}, inst.calls)
	})

	t.Run("backend down", func(t *testing.T) {
		inst := &fakeInstaller{err: types.NewServiceUnavailableError("Cannot connect to Ollama service. Please ensure it's running.")}
		mux := newModelMux(fakeInventory{}, inst)
		w := serve(mux, http.MethodPost, "/api/install_model", `{"model":"phi"}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.JSONEq(t, `{"detail":"Cannot connect to Ollama service. Please ensure it's running."}`, w.Body.String())
	})

	t.Run("pull failed", func(t *testing.T) {
		installErr := types.NewError(types.ErrInstallFailed, "Model installation failed: manifest unknown").
			WithHTTPStatus(http.StatusInternalServerError)
		mux := newModelMux(fakeInventory{}, &fakeInstaller{err: installErr})
		w := serve(mux, http.MethodPost, "/api/install_model", `{"model":"nope"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"detail":"Model installation failed: manifest unknown"}`, w.Body.String())
	})

	t.Run("untyped error", func(t *testing.T) {
		mux := newModelMux(fakeInventory{}, &fakeInstaller{err: errors.New("exec: \"ollama\": not found")})
		w := serve(mux, http.MethodPost, "/api/install_model", `{"model":"phi"}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"detail":"exec: \"ollama\": not found"}`, w.Body.String())
	})
}

func TestModelHandler_CheckAllModels(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		mux := newModelMux(tagsServer(t, http.StatusOK, "mistral", "other"), &fakeInstaller{})
		w := serve(mux, http.MethodGet, "/api/check_all_models", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp api.ModelStatusListResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, []backend.ModelStatus{
			{Name: "llama3", Installed: false},
			{Name: "mistral", Installed: true},
		}, resp.Models)
	})

	t.Run("backend status", func(t *testing.T) {
		mux := newModelMux(tagsServer(t, http.StatusInternalServerError), &fakeInstaller{})
		w := serve(mux, http.MethodGet, "/api/check_all_models", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"detail":"Failed to fetch models from Ollama"}`, w.Body.String())
	})

	t.Run("connection error", func(t *testing.T) {
		mux := newModelMux(fakeInventory{err: errors.New("connection refused")}, &fakeInstaller{})
		w := serve(mux, http.MethodGet, "/api/check_all_models", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"detail":"connection refused"}`, w.Body.String())
	})
}

func TestModelHandler_ListSmallModels(t *testing.T) {
	t.Run("with install status", func(t *testing.T) {
		mux := newModelMux(fakeInventory{installed: map[string]bool{"phi": true}}, &fakeInstaller{})
		w := serve(mux, http.MethodGet, "/api/list_small_models", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"models":[
			{"name":"tinyllama","description":"Compact chat model","size":"637MB","installed":false},
			{"name":"phi","description":"Small reasoning model","size":"1.6GB","installed":true}
		]}`, w.Body.String())
	})

	t.Run("backend unreachable", func(t *testing.T) {
		mux := newModelMux(fakeInventory{err: errors.New("down")}, &fakeInstaller{})
		w := serve(mux, http.MethodGet, "/api/list_small_models", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"models":[
			{"name":"tinyllama","description":"Compact chat model","size":"637MB"},
			{"name":"phi","description":"Small reasoning model","size":"1.6GB"}
		]}`, w.Body.String())
	})
}
