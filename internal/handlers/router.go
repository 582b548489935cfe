package handlers

import (
	"github.com/gorilla/mux"
	"github.com/umar/staychat/internal/auth"
	"github.com/umar/staychat/internal/chat"
	"github.com/umar/staychat/internal/middleware"
)

// NewRouter wires the REST surface and the socket endpoint. Every /api route
// requires a bearer token; /ws takes it from the token query parameter too.
func NewRouter(d *Deps, verifier auth.Verifier, sink auth.ProfileSink, corsOrigin string) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS(corsOrigin))

	router.HandleFunc("/health", Health(d.Gateway)).Methods("GET", "OPTIONS")
	router.HandleFunc("/ws", chat.ServeWS(d.Gateway, d.Broker, verifier, sink)).Methods("GET")

	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(auth.JWTMiddleware(verifier, sink))

	protected.HandleFunc("/auth/me", auth.MeHandler()).Methods("GET", "OPTIONS")
	protected.HandleFunc("/rooms", ListRooms(d)).Methods("GET", "OPTIONS")
	protected.HandleFunc("/rooms", CreateOrFindRoom(d)).Methods("POST")
	protected.HandleFunc("/rooms/{id}", GetRoom(d)).Methods("GET", "OPTIONS")
	protected.HandleFunc("/rooms/{id}", DeleteRoom(d)).Methods("DELETE")
	protected.HandleFunc("/rooms/{id}/messages", GetMessages(d)).Methods("GET", "OPTIONS")
	protected.HandleFunc("/rooms/{id}/read", MarkRead(d)).Methods("POST", "OPTIONS")
	protected.HandleFunc("/users/search", SearchUsers(d)).Methods("GET", "OPTIONS")
	protected.HandleFunc("/presence", Presence(d)).Methods("GET", "OPTIONS")

	return router
}
