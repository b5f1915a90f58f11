package api

import (
	"log"
	"net/http"
	"os"

	"github.com/fitlink-app/fitlink-server/cmd/utils"
	"github.com/fitlink-app/fitlink-server/service/account"
	"github.com/fitlink-app/fitlink-server/service/chat"
	"github.com/fitlink-app/fitlink-server/service/notifications"
	"github.com/fitlink-app/fitlink-server/service/reservation"
	"github.com/fitlink-app/fitlink-server/service/ws"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	pushService := notifications.NewPushService(s.db)
	chatService := chat.NewService(s.db)
	reservationService := reservation.NewService(s.db, pushService, chatService)

	accountHandler := account.NewHandler(s.db, pushService)
	accountHandler.RegisterRoutes(subrouter)

	reservationHandler := reservation.NewHandler(reservationService)
	reservationHandler.RegisterRoutes(subrouter)

	chatHandler := chat.NewHandler(chatService)
	chatHandler.RegisterRoutes(subrouter)

	notificationHandler := notifications.NewHandler(pushService)
	notificationHandler.RegisterRoutes(subrouter)

	hub := ws.NewHub()
	gateway := ws.NewGateway(hub, chatService, pushService, utils.ResolveToken)
	gateway.RegisterRoutes(router)

	reminders := notifications.NewReminderScheduler(reservationService, pushService)
	if err := reminders.Start(); err != nil {
		return err
	}
	defer reminders.Stop()

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	log.Println("Server running at", s.address)
	return http.ListenAndServe(s.address, handlers.LoggingHandler(os.Stdout, cors(router)))
}
