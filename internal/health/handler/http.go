package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// LivenessMessage is the body message of GET /health.
const LivenessMessage = "ᗧ···ᗣ···ᗣ··"

type HTTPHandler struct {
	checker *Checker
	now     func() time.Time
}

func NewHTTPHandler(checker *Checker) *HTTPHandler {
	return &HTTPHandler{checker: checker, now: time.Now}
}

// Register mounts /health and /ready on r. Neither requires auth.
func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/health", h.health)
	r.GET("/ready", h.ready)
}

type healthResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (h *HTTPHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Message:   LivenessMessage,
		Timestamp: h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

func (h *HTTPHandler) ready(c *gin.Context) {
	if err := h.checker.Check(c.Request.Context()); err != nil {
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("readiness check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ready"})
}
