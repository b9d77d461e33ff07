package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"dealer-crm/internal/vapi"

	"github.com/gin-gonic/gin"
)

// maxBodyBytes bounds how much of a delivery is read. Larger bodies are cut here
// and recorded as OutcomeTooLarge.
const maxBodyBytes = 5 << 20

// Ingester is implemented by *Service.
type Ingester interface {
	Ingest(ctx context.Context, d Delivery) Result
}

// Route is one public webhook path and the acknowledgment message it answers with.
type Route struct {
	Path    string
	Message string
}

// Routes lists every path the provider has been configured against.
var Routes = []Route{
	{Path: "/", Message: "Raw webhook received at root URL"},
	{Path: "/webhook", Message: "Raw webhook received"},
	{Path: "/webhooks/vapi", Message: "Raw VAPI webhook received"},
	{Path: "/api/webhook", Message: "Webhook received via API endpoint"},
	{Path: "/api/webhooks/vapi", Message: "Webhook received via API endpoint"},
	{Path: "/api/raw-webhook", Message: "VAPI webhook received"},
}

const catchAllMessage = "Webhook received"

type Handler struct {
	svc     Ingester
	maxBody int64
}

func NewHandler(svc Ingester) *Handler { return &Handler{svc: svc, maxBody: maxBodyBytes} }

// Register mounts every webhook alias as a POST route.
func (h *Handler) Register(r gin.IRoutes) {
	for _, rt := range Routes {
		r.POST(rt.Path, h.handle(rt.Message))
	}
}

// NoRoute accepts POSTs to any unmatched path; other methods get a JSON 404.
func (h *Handler) NoRoute() gin.HandlerFunc {
	ingest := h.handle(catchAllMessage)
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		ingest(c)
	}
}

func (h *Handler) handle(message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBody+1))
		if err != nil {
			// A broken body is still a delivery; audit whatever arrived.
			body = bytes.TrimSpace(body)
		}
		truncated := int64(len(body)) > h.maxBody
		if truncated {
			body = body[:h.maxBody]
		}

		res := h.svc.Ingest(c.Request.Context(), Delivery{
			Body:      body,
			Headers:   c.Request.Header.Clone(),
			Path:      c.Request.URL.Path,
			Method:    c.Request.Method,
			RemoteIP:  c.ClientIP(),
			Signature: c.GetHeader(vapi.SignatureHeader),
			Truncated: truncated,
		})

		if res.Outcome == OutcomeRejected {
			c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "invalid signature"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": message,
			"data":    echo(body),
		})
	}
}

// echo returns the body as received when it is JSON, and {} otherwise.
func echo(body []byte) json.RawMessage {
	t := bytes.TrimSpace(body)
	if len(t) == 0 || !json.Valid(t) || bytes.Equal(t, []byte("null")) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(t)
}
