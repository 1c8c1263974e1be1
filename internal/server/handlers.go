package server

import (
	"encoding/json"
	"io"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

type handler struct {
	logger  *zap.SugaredLogger
	updates chan<- tgbotapi.Update
}

// home handles the keep-alive probe on "/"
func (h *handler) home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != "GET" {
		w.Header().Set("Allow", "GET")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK - Telegram Feedback Bot running")); err != nil {
		h.logger.Errorf("writing keep-alive response: %v", err)
	}
}

// health handles HTTP requests on "/health"
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.Header().Set("Allow", "GET")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		h.logger.Errorf("writing health response: %v", err)
	}
}

// webhook handles Telegram update deliveries on "/webhook". The body has
// already been validated as JSON by the enforcePostJson middleware. Telegram
// retries non-200 answers, so anything that decodes is acknowledged.
func (h *handler) webhook(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	if !fastjson.Exists(body, "update_id") {
		http.Error(w, "Missing Field \"update_id\"", http.StatusBadRequest)
		return
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		h.logger.Warnf("Decoding webhook update failed: %v", err)
		http.Error(w, "Malformed update", http.StatusBadRequest)
		return
	}

	select {
	case h.updates <- update:
	case <-r.Context().Done():
		return
	}

	w.WriteHeader(http.StatusOK)
}
