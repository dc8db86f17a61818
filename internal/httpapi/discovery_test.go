package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"switchgear/internal/auth"
	"switchgear/internal/model"
	"switchgear/internal/store/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDiscoveryRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()

	key, err := auth.GenerateKeyPair()
	require.NoError(t, err)
	dir := t.TempDir()
	pubPath := filepath.Join(dir, "public.pem")
	require.NoError(t, auth.WritePublicKeyPEM(pubPath, key))

	verifier, err := auth.NewVerifier(pubPath)
	require.NoError(t, err)

	token, err := auth.Mint(key, time.Now().Add(time.Hour))
	require.NoError(t, err)

	backends := memory.NewBackendStore()
	h := NewDiscoveryHandler(backends, DiscoveryConfig{MaxPageSize: 50})
	r := NewDiscoveryRouter(h, verifier)
	return r, token
}

func sampleBackendJSON(t *testing.T, url string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"address":    map[string]any{"url": url},
		"partitions": []string{"us"},
		"name":       "node-a",
		"weight":     1,
		"enabled":    true,
		"implementation": map[string]any{
			"kind": "lnd_grpc",
			"lnd":  map[string]any{"url": "lnd.example:10009"},
		},
	})
	require.NoError(t, err)
	return b
}

func TestDiscoveryRequiresBearerToken(t *testing.T) {
	r, _ := setupDiscoveryRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/discovery", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDiscoveryCreateThenConflictOnDuplicateAddress(t *testing.T) {
	r, token := setupDiscoveryRouter(t)
	body := sampleBackendJSON(t, "http://node-a.example")

	req := httptest.NewRequest(http.MethodPost, "/discovery", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/discovery", bytes.NewReader(body))
	req2.Header.Set("Authorization", "Bearer "+token)
	req2.Header.Set("Content-Type", "application/json")
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusConflict, rec2.Code)
}

func TestDiscoveryPatchUnknownAddressReturns404(t *testing.T) {
	r, token := setupDiscoveryRouter(t)

	req := httptest.NewRequest(http.MethodPatch, "/discovery/url/aHR0cDovL21pc3Npbmc", bytes.NewReader([]byte(`{"enabled":false}`)))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiscoveryListAfterCreate(t *testing.T) {
	r, token := setupDiscoveryRouter(t)
	body := sampleBackendJSON(t, "http://node-b.example")

	req := httptest.NewRequest(http.MethodPost, "/discovery", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/discovery", nil)
	listReq.Header.Set("Authorization", "Bearer "+token)
	listRec := httptest.NewRecorder()
	r.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var out struct {
		Items []model.DiscoveryBackend `json:"items"`
		Total int                      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Total)
}

func TestDiscoveryHealthRequiresNoAuth(t *testing.T) {
	r, _ := setupDiscoveryRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
