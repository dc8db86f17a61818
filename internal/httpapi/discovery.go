package httpapi

import (
	"net/http"
	"time"

	"switchgear/internal/apperr"
	"switchgear/internal/auth"
	"switchgear/internal/model"
	"switchgear/internal/store"
	"switchgear/pkg/logger"

	"github.com/gin-gonic/gin"
)

// DiscoveryConfig bundles the admin surface's tunables, sourced from
// discovery-service.* in spec.md §6.
type DiscoveryConfig struct {
	MaxPageSize int
}

// DiscoveryHandler implements spec.md §4.5's DiscoveryBackend admin
// CRUD surface.
type DiscoveryHandler struct {
	backends store.BackendStore
	cfg      DiscoveryConfig
}

func NewDiscoveryHandler(backends store.BackendStore, cfg DiscoveryConfig) *DiscoveryHandler {
	return &DiscoveryHandler{backends: backends, cfg: cfg}
}

// NewDiscoveryRouter builds the gin.Engine for the Discovery admin
// surface, gated by verifier per spec.md §4.5/§4.7.
func NewDiscoveryRouter(h *DiscoveryHandler, verifier *auth.Verifier) *gin.Engine {
	r := newEngine(logger.SinkDiscovery)
	r.GET("/health", h.Health)
	grp := r.Group("/discovery", requireAuth(verifier))
	grp.GET("", h.List)
	grp.POST("", h.Create)
	grp.GET("/:kind/:value", h.Get)
	grp.PUT("/:kind/:value", h.Replace)
	grp.PATCH("/:kind/:value", h.Patch)
	grp.DELETE("/:kind/:value", h.Delete)
	return r
}

// Health handles GET /health: liveness, unauthenticated and always
// 200, per spec.md §4.5.
func (h *DiscoveryHandler) Health(c *gin.Context) {
	c.Status(http.StatusOK)
}

func addressFromParams(c *gin.Context) (model.Address, error) {
	return model.AddressFromRoute(c.Param("kind"), c.Param("value"))
}

// List handles GET /discovery?partition=&page=&page_size=.
func (h *DiscoveryHandler) List(c *gin.Context) {
	page, pageSize := pageQuery(c, h.cfg.MaxPageSize)
	partition := c.Query("partition")

	items, total, err := h.backends.GetAll(c.Request.Context(), partition, store.Page{Page: page, PageSize: pageSize})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "page": page, "pageSize": pageSize})
}

// Create handles POST /discovery: inserts a new DiscoveryBackend,
// rejecting an already-registered address with 409 Conflict per
// spec.md §4.5 ("POST on an existing address is a Conflict") — every
// store flavor's Put silently upserts, so the create-vs-replace
// distinction is enforced once, here.
func (h *DiscoveryHandler) Create(c *gin.Context) {
	var rec model.DiscoveryBackend
	if err := c.ShouldBindJSON(&rec); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if err := rec.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	key := rec.Address.Key()
	if _, err := h.backends.Get(c.Request.Context(), key); err == nil {
		writeError(c, apperr.Conflict("a backend is already registered at address "+rec.Address.String()))
		return
	} else if apperr.As(err).Kind != apperr.KindNotFound {
		writeError(c, err)
		return
	}

	now := time.Now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	if err := h.backends.Put(c.Request.Context(), key, rec); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// Get handles GET /discovery/{kind}/{value}.
func (h *DiscoveryHandler) Get(c *gin.Context) {
	addr, err := addressFromParams(c)
	if err != nil {
		writeError(c, apperr.NotFound(err.Error()))
		return
	}
	rec, err := h.backends.Get(c.Request.Context(), addr.Key())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Replace handles PUT /discovery/{kind}/{value}: full replacement of
// an existing backend. Unlike Create, this requires the address
// already exist, per spec.md §4.5 ("PUT on an unknown address is a
// NotFound").
func (h *DiscoveryHandler) Replace(c *gin.Context) {
	addr, err := addressFromParams(c)
	if err != nil {
		writeError(c, apperr.NotFound(err.Error()))
		return
	}
	key := addr.Key()

	existing, err := h.backends.Get(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}

	var rec model.DiscoveryBackend
	if err := c.ShouldBindJSON(&rec); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	rec.Address = addr
	if err := rec.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	rec.CreatedAt = existing.CreatedAt
	rec.UpdatedAt = time.Now()
	if err := h.backends.Put(c.Request.Context(), key, rec); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Patch handles PATCH /discovery/{kind}/{value}: partial update.
func (h *DiscoveryHandler) Patch(c *gin.Context) {
	addr, err := addressFromParams(c)
	if err != nil {
		writeError(c, apperr.NotFound(err.Error()))
		return
	}

	var patch model.PatchDiscoveryBackend
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	rec, err := h.backends.Patch(c.Request.Context(), addr.Key(), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Delete handles DELETE /discovery/{kind}/{value}.
func (h *DiscoveryHandler) Delete(c *gin.Context) {
	addr, err := addressFromParams(c)
	if err != nil {
		writeError(c, apperr.NotFound(err.Error()))
		return
	}
	if err := h.backends.Delete(c.Request.Context(), addr.Key()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
