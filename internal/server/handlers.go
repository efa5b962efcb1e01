package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"meetmail/internal/dispatch"
	logx "meetmail/pkg/logx"
)

type sendRequest struct {
	UserName    string `json:"user_name"`
	UserEmail   string `json:"user_email"`
	MeetingTime string `json:"meeting_time"`
}

type sendResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Recipient string    `json:"recipient,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string    `json:"error"`
	Message    string    `json:"message"`
	RequestID  string    `json:"request_id,omitempty"`
	RetryAfter int       `json:"retry_after,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service":     serviceName,
		"version":     serviceVersion,
		"status":      "running",
		"environment": s.cfg.Environment,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var smtpReachable *bool
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		err := s.ping(ctx)
		cancel()
		ok := err == nil
		smtpReachable = &ok
		if err != nil {
			s.log.Warn("smtp health probe failed", logx.Err(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"version":        serviceVersion,
		"environment":    s.cfg.Environment,
		"smtp_reachable": smtpReachable,
		"timestamp":      time.Now().UTC(),
	})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())

	var body sendRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON", requestID, 0)
		return
	}
	body.UserName = strings.TrimSpace(body.UserName)
	body.MeetingTime = strings.TrimSpace(body.MeetingTime)
	body.UserEmail = strings.TrimSpace(body.UserEmail)

	if msg := validateSend(body); msg != "" {
		s.writeError(w, http.StatusUnprocessableEntity, "validation_error", msg, requestID, 0)
		return
	}

	s.log.Info("email request received",
		logx.String("request_id", requestID),
		logx.String("recipient", body.UserEmail))

	res := s.eng.Send(r.Context(), dispatch.Request{
		RequestID:      requestID,
		Identity:       clientIP(r),
		RecipientName:  body.UserName,
		RecipientEmail: body.UserEmail,
		MeetingTime:    body.MeetingTime,
	})

	if res.Delivered() {
		writeJSON(w, http.StatusOK, sendResponse{
			Success:   true,
			Message:   "Email successfully sent to " + body.UserEmail,
			Recipient: body.UserEmail,
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
		})
		return
	}

	switch res.Reason {
	case dispatch.ReasonRateLimited:
		msg := fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %d seconds.",
			s.cfg.RateMaxRequests, s.cfg.RateWindowSeconds)
		s.writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", msg, requestID, s.cfg.RateWindowSeconds)
	case dispatch.ReasonUnparseableTime:
		s.writeError(w, http.StatusBadRequest, "unparseable_meeting_time",
			"Could not understand the meeting time: "+body.MeetingTime, requestID, 0)
	case dispatch.ReasonTransportRejected:
		s.writeError(w, http.StatusBadGateway, "email_send_error",
			"The mail server rejected the message", requestID, 0)
	default:
		s.writeError(w, http.StatusInternalServerError, "email_send_error",
			"An unexpected error occurred while sending the email", requestID, 0)
	}
}

type deliveryView struct {
	At        time.Time `json:"at"`
	RequestID string    `json:"request_id"`
	Recipient string    `json:"recipient"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	Attempts  int       `json:"attempts"`
	TookMS    int64     `json:"took_ms"`
}

// handleDeliveries exposes the tail of the delivery log, newest first, for
// operator inspection.
func (s *Server) handleDeliveries(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, "delivery_log_disabled",
			"Delivery-log persistence is not enabled", requestID, 0)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid_request",
				"limit must be a positive integer", requestID, 0)
			return
		}
		limit = n
	}
	if limit > 500 {
		limit = 500
	}

	entries, err := s.store.RecentDeliveries(r.Context(), limit)
	if err != nil {
		s.log.Warn("delivery log read failed", logx.Err(err))
		s.writeError(w, http.StatusInternalServerError, "delivery_log_error",
			"Could not read the delivery log", requestID, 0)
		return
	}

	views := make([]deliveryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, deliveryView{
			At:        e.At,
			RequestID: e.RequestID,
			Recipient: e.Recipient,
			Outcome:   e.Outcome,
			Reason:    e.Reason,
			Attempts:  e.Attempts,
			TookMS:    e.TookMS,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deliveries": views,
		"count":      len(views),
		"timestamp":  time.Now().UTC(),
	})
}

func validateSend(b sendRequest) string {
	if b.UserName == "" || len(b.UserName) > 100 {
		return "user_name must be 1-100 characters and non-blank"
	}
	if b.MeetingTime == "" || len(b.MeetingTime) > 200 {
		return "meeting_time must be 1-200 characters and non-blank"
	}
	if _, err := mail.ParseAddress(b.UserEmail); err != nil {
		return "user_email must be a valid email address"
	}
	return ""
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, msg, requestID string, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	}
	writeJSON(w, status, errorResponse{
		Error:      code,
		Message:    msg,
		RequestID:  requestID,
		RetryAfter: retryAfter,
		Timestamp:  time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
