package chat

import (
	"net/http"
	"strconv"

	"github.com/fitlink-app/fitlink-server/cmd/utils"
	"github.com/gorilla/mux"
)

const (
	defaultPageSize = 30
	maxPageSize     = 100
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers chat-related routes with Gorilla Mux
func (h *Handler) RegisterRoutes(router *mux.Router) {
	chatRouter := router.PathPrefix("/chats").Subrouter()
	chatRouter.HandleFunc("/rooms", utils.AuthMiddleware(h.GetTrainerRooms)).Methods("GET")
	chatRouter.HandleFunc("/me", utils.AuthMiddleware(h.GetMyRoom)).Methods("GET")
	chatRouter.HandleFunc("/{id}/messages", utils.AuthMiddleware(h.GetMessages)).Methods("GET")
}

func (h *Handler) GetTrainerRooms(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	rooms, err := h.service.GetRoomsForTrainer(r.Context(), accountID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rooms": rooms,
	})
}

func (h *Handler) GetMyRoom(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	chatID, err := h.service.GetRoomForMember(r.Context(), accountID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"chat_id": chatID,
	})
}

func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	role, err := utils.GetRoleFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	chatID, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid chat ID", http.StatusBadRequest)
		return
	}

	var cursor uint64
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor, err = strconv.ParseUint(raw, 10, 32)
		if err != nil {
			http.Error(w, "Invalid cursor", http.StatusBadRequest)
			return
		}
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	messages, err := h.service.GetMessages(r.Context(), uint(chatID), accountID, role, uint(cursor), limit)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}
