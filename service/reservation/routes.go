package reservation

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fitlink-app/fitlink-server/cmd/utils"
	"github.com/gorilla/mux"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers reservation-related routes with Gorilla Mux
func (h *Handler) RegisterRoutes(router *mux.Router) {
	reservationRouter := router.PathPrefix("/reservations").Subrouter()
	reservationRouter.HandleFunc("", utils.AuthMiddleware(h.CreateReservation)).Methods("POST")
	reservationRouter.HandleFunc("/me", utils.AuthMiddleware(h.GetMyReservations)).Methods("GET")
	reservationRouter.HandleFunc("/trainer", utils.AuthMiddleware(h.GetTrainerReservations)).Methods("GET")
	reservationRouter.HandleFunc("/{id}/cancel", utils.AuthMiddleware(h.CancelReservation)).Methods("PATCH")
}

type createReservationRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
}

func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if req.Date == "" || req.StartTime == "" {
		http.Error(w, "date and start_time are required", http.StatusBadRequest)
		return
	}

	reservation, err := h.service.Create(r.Context(), accountID, req.Date, req.StartTime)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"message":        "예약이 완료되었습니다.",
		"reservation_id": reservation.ID,
	})
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
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
	reservationID, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid reservation ID", http.StatusBadRequest)
		return
	}

	if err := h.service.Cancel(r.Context(), uint(reservationID), accountID, role); err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "예약이 취소되었습니다.",
	})
}

func (h *Handler) GetMyReservations(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	reservations, err := h.service.ListForMember(r.Context(), accountID)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, reservations)
}

func (h *Handler) GetTrainerReservations(w http.ResponseWriter, r *http.Request) {
	accountID, err := utils.GetAccountIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "date query parameter is required", http.StatusBadRequest)
		return
	}

	reservations, err := h.service.ListForTrainer(r.Context(), accountID, date)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"date":         date,
		"reservations": reservations,
	})
}
