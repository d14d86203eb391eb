package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cbodonnell/gameportal/pkg/catalog"
	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/cbodonnell/gameportal/pkg/version"
	"github.com/gorilla/mux"
)

func HandleListGames(games *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, games.List())
	}
}

func HandleGetGame(games *catalog.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameSpecID := mux.Vars(r)["gameSpecID"]
		spec, ok := games.GameSpec(gameSpecID)
		if !ok {
			http.Error(w, "Game not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, spec)
	}
}

type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Clients int    `json:"clients"`
	Games   int    `json:"games"`
}

// HandleHealthz reports liveness. clients counts open websocket sessions.
func HandleHealthz(games *catalog.Catalog, clients func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, &Health{
			Status:  "ok",
			Version: version.Get(),
			Clients: clients(),
			Games:   games.Len(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}
