package notifications

import (
	"encoding/json"
	"net/http"

	"github.com/fitlink-app/fitlink-server/cmd/utils"
	"github.com/gorilla/mux"
	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
)

type Handler struct {
	push *PushService
}

func NewHandler(push *PushService) *Handler {
	return &Handler{push: push}
}

// RegisterRoutes registers notification-related routes with Gorilla Mux
func (h *Handler) RegisterRoutes(router *mux.Router) {
	notificationRouter := router.PathPrefix("/notifications").Subrouter()
	notificationRouter.HandleFunc("/token", utils.AuthMiddleware(h.SavePushToken)).Methods("POST")
}

type savePushTokenRequest struct {
	ExpoPushToken string `json:"expo_push_token"`
}

func (h *Handler) SavePushToken(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req savePushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if req.ExpoPushToken == "" {
		http.Error(w, "expo_push_token is required", http.StatusBadRequest)
		return
	}
	if _, err := expo.NewExponentPushToken(req.ExpoPushToken); err != nil {
		http.Error(w, "Invalid Expo push token format", http.StatusBadRequest)
		return
	}

	if err := h.push.SavePushToken(accountID, req.ExpoPushToken); err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "푸시 토큰 저장 완료",
	})
}
