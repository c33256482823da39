package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"hunyuan-gateway/internal/llm"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON is a small helper to send JSON responses consistently.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRawJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, errorBody{
		Error:   "Internal Server Error",
		Message: err.Error(),
	})
}

// writeRequestError answers a body that could not be read or parsed.
func writeRequestError(w http.ResponseWriter, logger *zap.Logger, err error) {
	logger.Warn("invalid request", zap.Error(err))

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
			Error: "Invalid request body: request body too large.",
		})
		return
	}

	var verr *llm.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error()})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid request body: " + err.Error()})
}

// writeUpstreamError relays an upstream failure that happened before any
// response byte was written. HTTP errors keep the upstream status.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var httpErr *llm.UpstreamHTTPError
	if errors.As(err, &httpErr) {
		status := httpErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, errorBody{Error: httpErr.Error()})
		return
	}
	writeInternalError(w, err)
}
