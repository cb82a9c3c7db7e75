package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/dali-resolver/internal/pairconverter"
)

type priceHandler struct {
	pc *pairconverter.PairConverter
}

// NewRouter wires an embeddable Gin router exposing price lookups, a health
// endpoint, and a websocket stream of freshly cached bars. It does not call
// Run itself — the host program mounts or serves it.
func NewRouter(pc *pairconverter.PairConverter, hub *Hub) *gin.Engine {
	r := gin.Default()

	handler := &priceHandler{pc: pc}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", hub.Subscribe)
	}

	// 60 requests/minute per IP, burst 10 — price lookups can fall through to
	// a live exchange call on a cache miss.
	priced := r.Group("/api/v1")
	priced.Use(NewRateLimiter(60, 10).Middleware())
	{
		priced.GET("/price/:from/:to", handler.handlePrice)
	}

	return r
}

// handlePrice resolves a historical conversion rate between two assets.
// GET /api/v1/price/:from/:to?timestamp=2022-01-01T00:00:00Z&exchange=kraken
func (h *priceHandler) handlePrice(c *gin.Context) {
	from := c.Param("from")
	to := c.Param("to")
	exch := c.Query("exchange")

	ts := time.Now().UTC()
	if raw := c.Query("timestamp"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timestamp, want RFC3339"})
			return
		}
		ts = parsed
	}

	rate, ok, err := h.pc.GetConversionRate(c.Request.Context(), ts, from, to, exch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no conversion rate available for the requested pair and timestamp"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from":      from,
		"to":        to,
		"timestamp": ts.Format(time.RFC3339),
		"rate":      rate,
	})
}

// handleHealth reports liveness for service discovery and load balancer probes.
func (h *priceHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
	})
}
