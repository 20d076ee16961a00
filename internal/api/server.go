// Package api exposes the application over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"medifind/internal/app"
	"medifind/internal/middleware"
	"medifind/internal/stream"
	"medifind/internal/workers"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// WorkerStats reports background worker activity.
type WorkerStats interface {
	GetStats() workers.WorkerStats
}

type Server struct {
	app     *app.App
	hub     *stream.Hub
	auth    *middleware.AuthMiddleware
	logs    *LogBuffer
	workers WorkerStats
	health  func(ctx context.Context) error
	log     logrus.FieldLogger

	startTime time.Time
}

type Options struct {
	App     *app.App
	Hub     *stream.Hub
	Auth    *middleware.AuthMiddleware
	Logs    *LogBuffer
	Workers WorkerStats
	// Health checks the local store; nil means always healthy.
	Health func(ctx context.Context) error
	Log    logrus.FieldLogger
}

func NewServer(o Options) *Server {
	if o.Logs == nil {
		o.Logs = NewLogBuffer(maxLogs)
	}
	return &Server{
		app:       o.App,
		hub:       o.Hub,
		auth:      o.Auth,
		logs:      o.Logs,
		workers:   o.Workers,
		health:    o.Health,
		log:       o.Log,
		startTime: time.Now(),
	}
}

// Handler builds the router with CORS and authentication applied.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	if s.hub != nil {
		router.HandleFunc("/ws", s.hub.HandleWebSocket)
	}

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	api.HandleFunc("/logs", s.logsHandler).Methods("GET")

	api.HandleFunc("/medicines/search", s.searchMedicine).Methods("GET")
	api.HandleFunc("/medicines/ask", s.askAI).Methods("POST")
	api.HandleFunc("/history", s.listHistory).Methods("GET")
	api.HandleFunc("/history", s.clearHistory).Methods("DELETE")
	api.HandleFunc("/history/{id}", s.removeFromHistory).Methods("DELETE")
	api.HandleFunc("/favorites", s.listFavorites).Methods("GET")
	api.HandleFunc("/favorites/toggle", s.toggleFavorite).Methods("POST")

	api.HandleFunc("/reminders", s.listReminders).Methods("GET")
	api.HandleFunc("/reminders", s.addReminder).Methods("POST")
	api.HandleFunc("/reminders/{id}", s.updateReminder).Methods("PATCH")
	api.HandleFunc("/reminders/{id}", s.deleteReminder).Methods("DELETE")
	api.HandleFunc("/notifications", s.pendingNotifications).Methods("GET")

	api.HandleFunc("/doctors", s.listDoctors).Methods("GET")
	api.HandleFunc("/doctors/{id}", s.getDoctor).Methods("GET")
	api.HandleFunc("/doctors/{id}/availability", s.availability).Methods("GET")

	api.HandleFunc("/consultations", s.listConsultations).Methods("GET")
	api.HandleFunc("/consultations", s.bookConsultation).Methods("POST")
	api.HandleFunc("/consultations/sync", s.syncConsultations).Methods("POST")
	api.HandleFunc("/consultations/{id}/cancel", s.cancelConsultation).Methods("POST")
	api.HandleFunc("/consultations/{id}/status", s.updateConsultationStatus).Methods("PATCH")
	api.HandleFunc("/prescriptions", s.listPrescriptions).Methods("GET")
	api.HandleFunc("/prescriptions/{id}", s.getPrescription).Methods("GET")

	api.HandleFunc("/settings", s.getSettings).Methods("GET")
	api.HandleFunc("/settings", s.updateSettings).Methods("PUT")

	api.HandleFunc("/session", s.currentSession).Methods("GET")
	api.Handle("/session", s.auth.RequireIdentity(http.HandlerFunc(s.signIn))).Methods("POST")
	api.HandleFunc("/session", s.signOut).Methods("DELETE")
	api.HandleFunc("/session/push-token", s.registerPushToken).Methods("PUT")
	api.HandleFunc("/password-reset", s.passwordReset).Methods("POST")

	return corsMiddleware(s.auth.Authenticate(router))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			s.log.WithError(err).Warn("⚠️ Health check failed")
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, httpStatus, map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"uptime":    formatDuration(time.Since(s.startTime)),
		"state":     s.app.Stats(),
		"timestamp": time.Now().Unix(),
	}
	if s.hub != nil {
		response["active_clients"] = s.hub.ClientCount()
	}
	if s.workers != nil {
		response["workers"] = s.workers.GetStats()
	}
	writeData(w, http.StatusOK, "", response)
}

func (s *Server) logsHandler(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "", map[string]interface{}{
		"logs": s.logs.Lines(),
	})
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
