package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"quizclash/internal/cache"
	"quizclash/internal/transport/ws"
)

// Container holds the router's dependencies.
type Container struct {
	Leaderboard cache.LeaderboardCache
	WSHandler   *ws.Handler
	StaticDir   string
	CORSOrigins string
}

// NewRouter creates the HTTP router: health check, leaderboard read,
// WebSocket endpoint and static assets.
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	r.Use(corsMiddleware(c.CORSOrigins))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/rooms/{room}/leaderboard", leaderboardHandler(c.Leaderboard)).Methods("GET", "OPTIONS")
	v1.HandleFunc("/ws", c.WSHandler.Serve).Methods("GET")

	if c.StaticDir != "" {
		static := immutableAssets(http.FileServer(http.Dir(c.StaticDir)))
		r.PathPrefix("/images/").Handler(static)
		r.PathPrefix("/videos/").Handler(static)
	}

	return r
}

func immutableAssets(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(origins string) mux.MiddlewareFunc {
	if origins == "" {
		origins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
