package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/hub"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func CreateGame(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := h.NewSession()
		if err != nil {
			log.Error("create game failed", zap.Error(err))
			http.Error(w, "failed to create game", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			GameID string `json:"gameId"`
		}{GameID: id})
	}
}

func ListGames(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		games := h.All()
		out := make([]session.Summary, 0, len(games))
		for _, s := range games {
			out = append(out, s.Summary())
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func GetGame(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.Get(chi.URLParam(r, "id"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, hub.ErrSessionNotFound) {
				status = http.StatusNotFound
			}
			http.Error(w, http.StatusText(status), status)
			return
		}
		writeJSON(w, http.StatusOK, s.Summary())
	}
}

func Healthz(h *hub.Hub, serverID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Status   string `json:"status"`
			ServerID string `json:"serverId"`
			Games    int    `json:"games"`
		}{Status: "ok", ServerID: serverID, Games: h.Len()})
	}
}
