package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/talktalk/server/internal/middleware"
	"github.com/talktalk/server/internal/store"
)

// DirectoryHandler serves roster and conversation history reads
type DirectoryHandler struct {
	identities *store.IdentityStore
	history    store.HistoryLog
}

// NewDirectoryHandler creates a new directory handler
func NewDirectoryHandler(identities *store.IdentityStore, history store.HistoryLog) *DirectoryHandler {
	return &DirectoryHandler{
		identities: identities,
		history:    history,
	}
}

// HandleIdentities handles GET /identities. Returns the full roster.
func (h *DirectoryHandler) HandleIdentities(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.identities.Roster())
}

// HandleHistory handles GET /history/{idA}/{idB}. Returns the conversation
// between the pair in insertion order, both directions.
func (h *DirectoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	idA := chi.URLParam(r, "idA")
	idB := chi.URLParam(r, "idB")
	if idA == "" || idB == "" {
		respondWithError(w, http.StatusBadRequest, "both ids are required")
		return
	}

	convo, err := h.history.Query(r.Context(), idA, idB)
	if err != nil {
		log.Printf("history query failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	respondWithJSON(w, http.StatusOK, convo)
}

// HandleMe handles GET /me (protected). Returns the authenticated identity.
func (h *DirectoryHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok || identity == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondWithJSON(w, http.StatusOK, identity)
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}

// logMaskedID logs a message with the identity id masked
func logMaskedID(id, msg string, err error) {
	log.Printf("Identity %s: %s: %v", maskID(id), msg, err)
}

// maskID masks an identity id for logging (e.g., +4*****89)
func maskID(id string) string {
	if len(id) <= 4 {
		return "****"
	}
	prefix := id[:2]
	suffix := id[len(id)-2:]
	return prefix + strings.Repeat("*", len(id)-4) + suffix
}
