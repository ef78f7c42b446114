package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gtpesantren22/wasender/internal/handlers"
	"github.com/gtpesantren22/wasender/internal/middleware"
	"github.com/gtpesantren22/wasender/internal/websocket"
)

func New(
	waHandler *handlers.WhatsAppHandler,
	attendanceHandler *handlers.AttendanceHandler,
	wsHub *websocket.Hub,
	staticDir string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.CORS)

	// Send rate limiter (60 req/min per IP)
	sendLimiter := middleware.NewRateLimiter(60, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// ──── Message Sending ────
	r.Group(func(r chi.Router) {
		r.Use(sendLimiter.Middleware)
		r.Post("/send-personal", waHandler.SendPersonal)
		r.Post("/send-group", waHandler.SendGroup)
		r.Post("/send-group-image", waHandler.SendGroupImage)
		r.Get("/send-image", waHandler.SendImage)
		r.Get("/send-url", waHandler.SendURL)
		r.Get("/send-ad-message", waHandler.SendAdMessage)
	})

	// ──── Session ────
	r.Get("/groups", waHandler.Groups)
	r.Post("/disconnect", waHandler.Disconnect)

	// ──── Attendance ────
	r.Post("/add-absen", attendanceHandler.AddAbsen)

	// ──── Realtime dashboard ────
	r.Get("/ws", wsHub.HandleWebSocket)
	if staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	}

	return r
}
