package httpapi

import (
	"context"
	"net/http"
	"time"

	"switchgear/internal/apperr"
	"switchgear/internal/auth"
	"switchgear/internal/model"
	"switchgear/internal/store"
	"switchgear/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OfferConfig bundles the admin surface's tunables, sourced from
// offer-service.* in spec.md §6.
type OfferConfig struct {
	MaxPageSize int
}

// OfferHandler implements spec.md §4.5's Offer and OfferMetadata admin
// CRUD surfaces. Both live under one handler because Offer's
// referential-integrity checks need both stores in hand, per
// internal/store.MetadataStore's doc comment.
type OfferHandler struct {
	offers   store.OfferStore
	metadata store.MetadataStore
	cfg      OfferConfig
}

func NewOfferHandler(offers store.OfferStore, metadata store.MetadataStore, cfg OfferConfig) *OfferHandler {
	return &OfferHandler{offers: offers, metadata: metadata, cfg: cfg}
}

// NewOfferRouter builds the gin.Engine for the Offer admin surface,
// gated by verifier per spec.md §4.5/§4.7.
func NewOfferRouter(h *OfferHandler, verifier *auth.Verifier) *gin.Engine {
	r := newEngine(logger.SinkOffer)
	r.GET("/health", h.Health)
	grp := r.Group("/", requireAuth(verifier))

	grp.GET("/offers/:partition", h.ListOffers)
	grp.POST("/offers/:partition", h.CreateOffer)
	grp.GET("/offers/:partition/:id", h.GetOffer)
	grp.PUT("/offers/:partition/:id", h.ReplaceOffer)
	grp.DELETE("/offers/:partition/:id", h.DeleteOffer)

	grp.GET("/metadata/:partition", h.ListMetadata)
	grp.POST("/metadata/:partition", h.CreateMetadata)
	grp.GET("/metadata/:partition/:id", h.GetMetadata)
	grp.PUT("/metadata/:partition/:id", h.ReplaceMetadata)
	grp.DELETE("/metadata/:partition/:id", h.DeleteMetadata)

	return r
}

// Health handles GET /health: liveness, unauthenticated and always
// 200, per spec.md §4.5.
func (h *OfferHandler) Health(c *gin.Context) {
	c.Status(http.StatusOK)
}

// metadataExists checks that a (partition, metadataID) row exists,
// backing the 422 ReferentialIntegrity check on Offer POST/PUT per
// spec.md §4.5 ("POST with metadata_id not present in the partition
// → 422").
func (h *OfferHandler) metadataExists(ctx context.Context, partition string, id uuid.UUID) (bool, error) {
	_, err := h.metadata.Get(ctx, store.Key(partition, id.String()))
	if err == nil {
		return true, nil
	}
	if apperr.As(err).Kind == apperr.KindNotFound {
		return false, nil
	}
	return false, err
}

// offerReferencesMetadata scans partition's offers for one with the
// given metadata id, backing the 422 ReferentialIntegrity check on
// OfferMetadata DELETE. Every store flavor's OfferStore.GetAll
// supports this; sqlstore's MetadataStore additionally short-circuits
// the same check with a single COUNT query.
func (h *OfferHandler) offerReferencesMetadata(ctx context.Context, partition string, metadataID uuid.UUID) (bool, error) {
	const scanPageSize = 200
	for page := 0; ; page++ {
		items, total, err := h.offers.GetAll(ctx, partition, store.Page{Page: page, PageSize: scanPageSize})
		if err != nil {
			return false, err
		}
		for _, o := range items {
			if o.MetadataID == metadataID {
				return true, nil
			}
		}
		if (page+1)*scanPageSize >= total || len(items) == 0 {
			return false, nil
		}
	}
}

// ListOffers handles GET /offers/{partition}?page=&page_size=.
func (h *OfferHandler) ListOffers(c *gin.Context) {
	partition := c.Param("partition")
	page, pageSize := pageQuery(c, h.cfg.MaxPageSize)

	items, total, err := h.offers.GetAll(c.Request.Context(), partition, store.Page{Page: page, PageSize: pageSize})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "page": page, "pageSize": pageSize})
}

// CreateOffer handles POST /offers/{partition}.
func (h *OfferHandler) CreateOffer(c *gin.Context) {
	partition := c.Param("partition")

	var rec model.Offer
	if err := c.ShouldBindJSON(&rec); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	rec.Partition = partition
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if err := rec.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	exists, err := h.metadataExists(c.Request.Context(), partition, rec.MetadataID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !exists {
		writeError(c, apperr.ReferentialIntegrity("metadata "+rec.MetadataID.String()+" does not exist in partition "+partition))
		return
	}

	key := store.Key(partition, rec.ID.String())
	if err := h.offers.Put(c.Request.Context(), key, rec); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// GetOffer handles GET /offers/{partition}/{id}.
func (h *OfferHandler) GetOffer(c *gin.Context) {
	rec, err := h.offers.Get(c.Request.Context(), store.Key(c.Param("partition"), c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ReplaceOffer handles PUT /offers/{partition}/{id}.
func (h *OfferHandler) ReplaceOffer(c *gin.Context) {
	partition, id := c.Param("partition"), c.Param("id")
	key := store.Key(partition, id)

	if _, err := h.offers.Get(c.Request.Context(), key); err != nil {
		writeError(c, err)
		return
	}

	var rec model.Offer
	if err := c.ShouldBindJSON(&rec); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	rec.Partition = partition
	parsedID, err := uuid.Parse(id)
	if err != nil {
		badRequest(c, "id must be a UUID")
		return
	}
	rec.ID = parsedID
	if err := rec.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	exists, err := h.metadataExists(c.Request.Context(), partition, rec.MetadataID)
	if err != nil {
		writeError(c, err)
		return
	}
	if !exists {
		writeError(c, apperr.ReferentialIntegrity("metadata "+rec.MetadataID.String()+" does not exist in partition "+partition))
		return
	}

	if err := h.offers.Put(c.Request.Context(), key, rec); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// DeleteOffer handles DELETE /offers/{partition}/{id}.
func (h *OfferHandler) DeleteOffer(c *gin.Context) {
	key := store.Key(c.Param("partition"), c.Param("id"))
	if err := h.offers.Delete(c.Request.Context(), key); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMetadata handles GET /metadata/{partition}?page=&page_size=.
func (h *OfferHandler) ListMetadata(c *gin.Context) {
	partition := c.Param("partition")
	page, pageSize := pageQuery(c, h.cfg.MaxPageSize)

	items, total, err := h.metadata.GetAll(c.Request.Context(), partition, store.Page{Page: page, PageSize: pageSize})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "page": page, "pageSize": pageSize})
}

// CreateMetadata handles POST /metadata/{partition}.
func (h *OfferHandler) CreateMetadata(c *gin.Context) {
	partition := c.Param("partition")

	var rec model.OfferMetadata
	if err := c.ShouldBindJSON(&rec); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	rec.Partition = partition
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if err := rec.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	key := store.Key(partition, rec.ID.String())
	if err := h.metadata.Put(c.Request.Context(), key, rec); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// GetMetadata handles GET /metadata/{partition}/{id}.
func (h *OfferHandler) GetMetadata(c *gin.Context) {
	rec, err := h.metadata.Get(c.Request.Context(), store.Key(c.Param("partition"), c.Param("id")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ReplaceMetadata handles PUT /metadata/{partition}/{id}.
func (h *OfferHandler) ReplaceMetadata(c *gin.Context) {
	partition, id := c.Param("partition"), c.Param("id")
	key := store.Key(partition, id)

	if _, err := h.metadata.Get(c.Request.Context(), key); err != nil {
		writeError(c, err)
		return
	}

	var rec model.OfferMetadata
	if err := c.ShouldBindJSON(&rec); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	rec.Partition = partition
	parsedID, err := uuid.Parse(id)
	if err != nil {
		badRequest(c, "id must be a UUID")
		return
	}
	rec.ID = parsedID
	if err := rec.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.metadata.Put(c.Request.Context(), key, rec); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// DeleteMetadata handles DELETE /metadata/{partition}/{id}: rejects
// with 422 while an Offer still references the row, per spec.md §4.5.
// memory and httpstore's MetadataStore don't enforce this themselves
// (per internal/store.MetadataStore's doc comment), so it's checked
// generically here across all three store flavors.
func (h *OfferHandler) DeleteMetadata(c *gin.Context) {
	partition, id := c.Param("partition"), c.Param("id")

	parsedID, err := uuid.Parse(id)
	if err != nil {
		badRequest(c, "id must be a UUID")
		return
	}

	referenced, err := h.offerReferencesMetadata(c.Request.Context(), partition, parsedID)
	if err != nil {
		writeError(c, err)
		return
	}
	if referenced {
		writeError(c, apperr.ReferentialIntegrity("metadata "+id+" is still referenced by an offer"))
		return
	}

	if err := h.metadata.Delete(c.Request.Context(), store.Key(partition, id)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
