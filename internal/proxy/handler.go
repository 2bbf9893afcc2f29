// Package proxy forwards a question to the hosted decoder endpoint using a
// bearer token read from the environment.
package proxy

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"os"
	"strconv"

	commonhttp "breakfear-decoder/internal/common/http"
	"breakfear-decoder/internal/common/logger"
	"breakfear-decoder/internal/common/metrics"
)

const DefaultUpstreamURL = "https://api.yourdecoder.com"

type Handler struct {
	client      *commonhttp.Client
	upstreamURL string
	tokenEnv    string
	getenv      func(string) string
	logger      logger.Logger
}

func NewHandler(client *commonhttp.Client, upstreamURL, tokenEnv string, log logger.Logger) *Handler {
	if upstreamURL == "" {
		upstreamURL = DefaultUpstreamURL
	}
	return &Handler{
		client:      client,
		upstreamURL: upstreamURL,
		tokenEnv:    tokenEnv,
		getenv:      os.Getenv,
		logger:      log.WithFields(map[string]interface{}{"component": "proxy"}),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Use POST")
		return
	}

	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	question, ok := body["question"].(string)
	if !ok || question == "" {
		h.writeError(w, http.StatusBadRequest, "Missing question")
		return
	}

	token := h.getenv(h.tokenEnv)
	if token == "" {
		h.logger.Error("proxy token not configured", map[string]interface{}{"env": h.tokenEnv})
		h.writeError(w, http.StatusInternalServerError, "API key not set")
		return
	}

	resp, err := h.client.PostJSON(r.Context(), h.upstreamURL,
		map[string]string{"question": question},
		map[string]string{"Authorization": "Bearer " + token},
	)
	if err != nil {
		var statusErr *commonhttp.StatusError
		if stderrors.As(err, &statusErr) {
			h.write(w, statusErr.StatusCode, []byte(statusErr.Body))
			return
		}
		h.logger.Error("upstream call failed", map[string]interface{}{"error": err.Error()})
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.write(w, resp.StatusCode, resp.Body)
}

func (h *Handler) write(w http.ResponseWriter, status int, body []byte) {
	metrics.ProxyRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	h.write(w, status, body)
}
