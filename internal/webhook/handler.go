package webhook

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"fleetvoice-platform/internal/telephony"
	"fleetvoice-platform/pkg/logger"
)

// SecretHeader carries the shared webhook secret. Verification is skipped
// when no secret is configured.
const SecretHeader = "X-Webhook-Secret"

// Handler exposes the provider completion webhook over HTTP.
type Handler struct {
	receiver *Receiver
	secret   string
}

func NewHandler(receiver *Receiver, secret string) *Handler {
	return &Handler{receiver: receiver, secret: secret}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/webhooks/voice/completed", h.handleCompleted)
}

// handleCompleted acknowledges with 200 for anything that must not be
// redelivered (applied, duplicate, unknown call) and 5xx only when
// storage failed and a retry could succeed.
func (h *Handler) handleCompleted(c *gin.Context) {
	log := logger.FromGin(c)

	if h.secret != "" {
		got := c.GetHeader(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			log.Warn("webhook rejected: bad secret")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
	}

	payload, err := telephony.ParseCompletionPayload(c.Request.Body)
	if err != nil {
		log.Warn("webhook rejected: malformed payload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.receiver.Process(c.Request.Context(), payload)
	if err != nil {
		log.Error("webhook processing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcome":  res.Outcome,
		"call_sid": payload.CallSID(),
	})
}
