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
	"switchgear/internal/store/memory"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupOfferRouter(t *testing.T) (*gin.Engine, string) {
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

	h := NewOfferHandler(memory.NewOfferStore(), memory.NewMetadataStore(), OfferConfig{MaxPageSize: 50})
	r := NewOfferRouter(h, verifier)
	return r, token
}

func createMetadata(t *testing.T, r *gin.Engine, token, partition, text string) string {
	t.Helper()
	body, err := json.Marshal(map[string]any{"text": text})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/metadata/"+partition, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var out struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.ID.String()
}

func TestOfferCreateRejectsUnknownMetadataID(t *testing.T) {
	r, token := setupOfferRouter(t)

	body, err := json.Marshal(map[string]any{
		"minSendable": 1000,
		"maxSendable": 2000,
		"metadataId":  uuid.New().String(),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/offers/us", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestOfferCreateThenGet(t *testing.T) {
	r, token := setupOfferRouter(t)
	metaID := createMetadata(t, r, token, "us", "Payment")

	body, err := json.Marshal(map[string]any{
		"minSendable": 1000,
		"maxSendable": 2000,
		"metadataId":  metaID,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/offers/us", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	getReq := httptest.NewRequest(http.MethodGet, "/offers/us/"+created.ID.String(), nil)
	getReq.Header.Set("Authorization", "Bearer "+token)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusOK, getRec.Code)
}

func TestMetadataDeleteBlockedWhileOfferReferencesIt(t *testing.T) {
	r, token := setupOfferRouter(t)
	metaID := createMetadata(t, r, token, "us", "Payment")

	body, err := json.Marshal(map[string]any{
		"minSendable": 1000,
		"maxSendable": 2000,
		"metadataId":  metaID,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/offers/us", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	delReq := httptest.NewRequest(http.MethodDelete, "/metadata/us/"+metaID, nil)
	delReq.Header.Set("Authorization", "Bearer "+token)
	delRec := httptest.NewRecorder()
	r.ServeHTTP(delRec, delReq)
	assert.Equal(t, http.StatusUnprocessableEntity, delRec.Code)
}

func TestOfferHealthRequiresNoAuth(t *testing.T) {
	r, _ := setupOfferRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
