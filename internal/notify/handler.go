package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	// ChannelAlert goes to store staff rather than a customer.
	ChannelAlert Channel = "alert"
)

// Message is the body of POST /send.
type Message struct {
	Channel Channel `json:"channel"`
	To      string  `json:"to"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Link    string  `json:"link,omitempty"`
}

func (m Message) validate() error {
	switch m.Channel {
	case ChannelWhatsApp, ChannelEmail, ChannelAlert:
	default:
		return fmt.Errorf("unknown channel %q", m.Channel)
	}
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("recipient is required")
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("body is required")
	}
	return nil
}

type Handler struct {
	sent   metric.Int64Counter
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) (*Handler, error) {
	sent, err := otel.Meter("github.com/joao-fontenele/posflow/notify").Int64Counter("notify.sent",
		metric.WithDescription("Notifications delivered by channel"),
	)
	if err != nil {
		return nil, err
	}

	return &Handler{
		sent:   sent,
		logger: logger,
	}, nil
}

type sendResponse struct {
	Status string `json:"status"`
}

// HandleSend accepts a notification for delivery. Delivery itself is a log
// line; there is no outbound provider.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var msg Message
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&msg); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := msg.validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.sent.Add(r.Context(), 1, metric.WithAttributes(attribute.String("channel", string(msg.Channel))))
	h.logger.InfoContext(r.Context(), "notification sent",
		"channel", msg.Channel,
		"to", msg.To,
		"subject", msg.Subject,
		"link", msg.Link,
	)

	h.writeJSON(w, http.StatusOK, sendResponse{Status: "sent"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
