package httpapi

import (
	"context"
	"fmt"
	"image/color"
	"net/http"
	"strconv"
	"strings"
	"time"

	"switchgear/internal/apperr"
	"switchgear/internal/invoice"
	"switchgear/internal/model"
	"switchgear/internal/selector"
	"switchgear/internal/store"
	"switchgear/pkg/logger"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
)

// LNURLConfig bundles the public surface's tunables, sourced from
// lnurl-service.* in spec.md §6.
type LNURLConfig struct {
	Partitions        []string
	AllowedHosts      []string
	InvoiceExpirySecs int
	CommentAllowed    int
	Bech32QRScale     int
	Bech32QRLight     string
	Bech32QRDark      string
}

// LNURLHandler implements spec.md §4.4's public endpoints.
type LNURLHandler struct {
	offers     store.OfferStore
	metadata   store.MetadataStore
	dispatcher *invoice.Dispatcher
	pool       *selector.Pool
	cfg        LNURLConfig
	partitions map[string]bool
}

func NewLNURLHandler(offers store.OfferStore, metadata store.MetadataStore, dispatcher *invoice.Dispatcher, pool *selector.Pool, cfg LNURLConfig) *LNURLHandler {
	partitions := make(map[string]bool, len(cfg.Partitions))
	for _, p := range cfg.Partitions {
		partitions[p] = true
	}
	return &LNURLHandler{offers: offers, metadata: metadata, dispatcher: dispatcher, pool: pool, cfg: cfg, partitions: partitions}
}

// NewLNURLRouter builds the gin.Engine for the public LNURL surface,
// unauthenticated per spec.md §4.4.
func NewLNURLRouter(h *LNURLHandler) *gin.Engine {
	r := newEngine(logger.SinkLNURL)
	r.GET("/offers/:partition/:id", h.PayRequest)
	r.GET("/offers/:partition/:id/invoice", h.Invoice)
	r.GET("/offers/:partition/:id/bech32", h.Bech32)
	r.GET("/offers/:partition/:id/bech32/qr", h.Bech32QR)
	r.GET("/health", h.Health)
	r.GET("/health/full", h.HealthFull)
	return r
}

// loadOffer resolves (partition, id) to an Offer + its OfferMetadata,
// enforcing spec.md §4.4's partition allowlist and 404 semantics.
func (h *LNURLHandler) loadOffer(ctx context.Context, partition, id string) (model.Offer, model.OfferMetadata, error) {
	if !h.partitions[partition] {
		return model.Offer{}, model.OfferMetadata{}, apperr.NotFound("partition " + partition + " is not served by this instance")
	}

	offer, err := h.offers.Get(ctx, store.Key(partition, id))
	if err != nil {
		return model.Offer{}, model.OfferMetadata{}, err
	}
	if offer.IsExpired(time.Now()) {
		return model.Offer{}, model.OfferMetadata{}, apperr.NotFound("offer " + id + " has expired")
	}

	meta, err := h.metadata.Get(ctx, store.Key(partition, offer.MetadataID.String()))
	if err != nil {
		return model.Offer{}, model.OfferMetadata{}, err
	}
	return offer, meta, nil
}

// callbackBase validates the request's Host header against
// lnurl-service.allowed-hosts and returns the scheme://host prefix
// callback URLs are built from, per spec.md §4.4.
func (h *LNURLHandler) callbackBase(c *gin.Context) (string, error) {
	host := c.Request.Host
	if len(h.cfg.AllowedHosts) > 0 {
		ok := false
		for _, allowed := range h.cfg.AllowedHosts {
			if strings.EqualFold(allowed, host) {
				ok = true
				break
			}
		}
		if !ok {
			return "", fmt.Errorf("host %q is not in allowed-hosts", host)
		}
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + host, nil
}

// PayRequest handles GET /offers/{partition}/{id}: the LUD-06
// payRequest descriptor.
func (h *LNURLHandler) PayRequest(c *gin.Context) {
	partition := c.Param("partition")
	id := c.Param("id")

	offer, meta, err := h.loadOffer(c.Request.Context(), partition, id)
	if err != nil {
		writeError(c, err)
		return
	}

	base, err := h.callbackBase(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	metadataJSON, err := invoice.MetadataJSON(meta)
	if err != nil {
		writeError(c, apperr.Internal("failed to encode offer metadata", err))
		return
	}

	resp := gin.H{
		"callback":     base + "/offers/" + partition + "/" + id + "/invoice",
		"minSendable":  offer.MinSendableMsat,
		"maxSendable":  offer.MaxSendableMsat,
		"metadata":     string(metadataJSON),
		"tag":          "payRequest",
	}
	if h.cfg.CommentAllowed > 0 {
		resp["commentAllowed"] = h.cfg.CommentAllowed
	}
	c.JSON(http.StatusOK, resp)
}

// Invoice handles GET /offers/{partition}/{id}/invoice: dispatches one
// BOLT-11 invoice request, per spec.md §4.3/§4.4.
func (h *LNURLHandler) Invoice(c *gin.Context) {
	partition := c.Param("partition")
	id := c.Param("id")

	offer, meta, err := h.loadOffer(c.Request.Context(), partition, id)
	if err != nil {
		writeError(c, err)
		return
	}

	amountMsat, err := strconv.ParseInt(c.Query("amount"), 10, 64)
	if err != nil {
		lnurlError(c, apperr.InvalidAmount("amount must be an integer number of millisatoshis"))
		return
	}
	if err := invoice.ValidateAmount(amountMsat, offer.MinSendableMsat, offer.MaxSendableMsat); err != nil {
		lnurlError(c, err)
		return
	}

	hash, _, err := invoice.DescriptionHash(meta)
	if err != nil {
		lnurlError(c, apperr.Internal("failed to hash offer metadata", err))
		return
	}

	result, err := h.dispatcher.Dispatch(c.Request.Context(), invoice.Request{
		Partition:       partition,
		OfferID:         id,
		AmountMsat:      amountMsat,
		DescriptionHash: hash,
		ExpirySecs:      h.cfg.InvoiceExpirySecs,
		Comment:         c.Query("comment"),
		CommentAllowed:  h.cfg.CommentAllowed,
	})
	if err != nil {
		lnurlError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"pr": result.PaymentRequest, "routes": []any{}})
}

// lnurlError maps InvalidAmount/NoBackendAvailable to a LUD-06 ERROR
// body (200, per spec.md §7); anything else uses the ordinary status
// mapping.
func lnurlError(c *gin.Context, err error) {
	e := apperr.As(err)
	if e.Kind == apperr.KindInvalidAmount || e.Kind == apperr.KindNoBackendAvailable {
		c.JSON(http.StatusOK, gin.H{"status": "ERROR", "reason": e.Reason})
		return
	}
	writeError(c, err)
}

// lnurlString builds the LUD-06 pay-request URL for one offer and
// bech32-encodes it per LUD-17, using the "lnurl" HRP and uppercase
// rendering clients expect.
func (h *LNURLHandler) lnurlString(c *gin.Context, partition, id string) (string, error) {
	base, err := h.callbackBase(c)
	if err != nil {
		return "", err
	}
	url := base + "/offers/" + partition + "/" + id

	converted, err := bech32.ConvertBits([]byte(url), 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("failed to convert lnurl bits: %w", err)
	}
	encoded, err := bech32.Encode("lnurl", converted)
	if err != nil {
		return "", fmt.Errorf("failed to bech32-encode lnurl: %w", err)
	}
	return strings.ToUpper(encoded), nil
}

// Bech32 handles GET /offers/{partition}/{id}/bech32: the LUD-17
// bech32-encoded LNURL as text/plain.
func (h *LNURLHandler) Bech32(c *gin.Context) {
	partition := c.Param("partition")
	id := c.Param("id")

	if _, _, err := h.loadOffer(c.Request.Context(), partition, id); err != nil {
		writeError(c, err)
		return
	}

	lnurl, err := h.lnurlString(c, partition, id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, lnurl)
}

// Bech32QR handles GET /offers/{partition}/{id}/bech32/qr: a PNG QR
// code of the bech32-encoded LNURL, rendered per lnurl-service's
// bech32-qr-{scale,light,dark} config.
func (h *LNURLHandler) Bech32QR(c *gin.Context) {
	partition := c.Param("partition")
	id := c.Param("id")

	if _, _, err := h.loadOffer(c.Request.Context(), partition, id); err != nil {
		writeError(c, err)
		return
	}

	lnurl, err := h.lnurlString(c, partition, id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	qr, err := qrcode.New(lnurl, qrcode.Medium)
	if err != nil {
		writeError(c, apperr.Internal("failed to build QR code", err))
		return
	}
	if light, ok := parseHexColor(h.cfg.Bech32QRLight); ok {
		qr.BackgroundColor = light
	}
	if dark, ok := parseHexColor(h.cfg.Bech32QRDark); ok {
		qr.ForegroundColor = dark
	}

	scale := h.cfg.Bech32QRScale
	if scale <= 0 {
		scale = 256
	}
	png, err := qr.PNG(scale)
	if err != nil {
		writeError(c, apperr.Internal("failed to render QR code", err))
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func parseHexColor(s string) (color.Color, bool) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return nil, false
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return nil, false
	}
	return color.RGBA{R: r, G: g, B: b, A: 0xFF}, true
}

// Health handles GET /health: liveness, always 200 per spec.md §4.4.
func (h *LNURLHandler) Health(c *gin.Context) {
	c.Status(http.StatusOK)
}

// HealthFull handles GET /health/full: readiness, 200 iff at least
// one backend is Healthy in any configured partition.
func (h *LNURLHandler) HealthFull(c *gin.Context) {
	if h.pool.AnyHealthy() {
		c.Status(http.StatusOK)
		return
	}
	c.Status(http.StatusInternalServerError)
}
