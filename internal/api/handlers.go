package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"medifind/internal/app"
	"medifind/internal/middleware"
	"medifind/pkg/models"

	"github.com/gorilla/mux"
)

func (s *Server) searchMedicine(w http.ResponseWriter, r *http.Request) {
	m, err := s.app.SearchMedicine(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", m)
}

type askRequest struct {
	Medicine string `json:"medicine"`
	Question string `json:"question"`
}

func (s *Server) askAI(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	answer, err := s.app.AskAI(r.Context(), req.Medicine, req.Question)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]string{"answer": answer})
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "", s.app.Cache.SearchHistory())
}

func (s *Server) clearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.app.ClearHistory(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "History cleared", nil)
}

func (s *Server) removeFromHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.app.RemoveFromHistory(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Removed from history", nil)
}

func (s *Server) listFavorites(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "", s.app.Cache.Favorites())
}

func (s *Server) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	var m models.Medicine
	if err := decodeBody(r, &m); err != nil {
		s.writeError(w, r, err)
		return
	}
	added, err := s.app.ToggleFavorite(r.Context(), m)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", map[string]bool{"isFavorite": added})
}

func (s *Server) listReminders(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "", s.app.Cache.Reminders())
}

func (s *Server) addReminder(w http.ResponseWriter, r *http.Request) {
	var in app.ReminderInput
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	reminder, err := s.app.AddReminder(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Reminder created", reminder)
}

func (s *Server) updateReminder(w http.ResponseWriter, r *http.Request) {
	var patch models.ReminderPatch
	if err := decodeBody(r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	reminder, err := s.app.UpdateReminder(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Reminder updated", reminder)
}

func (s *Server) deleteReminder(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteReminder(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Reminder deleted", nil)
}

func (s *Server) pendingNotifications(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "", s.app.Notifier.Pending())
}

func (s *Server) listDoctors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if specialization := q.Get("specialization"); specialization != "" {
		doctors, err := s.app.DoctorsBySpecialization(r.Context(), specialization)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, "", doctors)
		return
	}

	refresh, _ := strconv.ParseBool(q.Get("refresh"))
	doctors, err := s.app.Doctors(r.Context(), refresh)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", doctors)
}

func (s *Server) getDoctor(w http.ResponseWriter, r *http.Request) {
	doctor, err := s.app.Doctor(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", doctor)
}

func (s *Server) availability(w http.ResponseWriter, r *http.Request) {
	slots, err := s.app.Availability(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("date"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", slots)
}

func (s *Server) listConsultations(w http.ResponseWriter, r *http.Request) {
	consultations, err := s.app.Consultations()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", consultations)
}

func (s *Server) bookConsultation(w http.ResponseWriter, r *http.Request) {
	var in app.BookInput
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.app.BookConsultation(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Consultation booked", c)
}

func (s *Server) syncConsultations(w http.ResponseWriter, r *http.Request) {
	if err := s.app.SyncConsultations(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.app.SyncPrescriptions(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	consultations, _ := s.app.Consultations()
	writeData(w, http.StatusOK, "Synchronized", consultations)
}

func (s *Server) cancelConsultation(w http.ResponseWriter, r *http.Request) {
	c, err := s.app.CancelConsultation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Consultation cancelled", c)
}

type statusRequest struct {
	Status models.ConsultationStatus `json:"status"`
}

func (s *Server) updateConsultationStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.app.UpdateConsultationStatus(r.Context(), mux.Vars(r)["id"], req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Consultation updated", c)
}

func (s *Server) listPrescriptions(w http.ResponseWriter, r *http.Request) {
	prescriptions, err := s.app.Prescriptions()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", prescriptions)
}

func (s *Server) getPrescription(w http.ResponseWriter, r *http.Request) {
	p, err := s.app.Prescription(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", p)
}

type settings struct {
	DarkMode *bool `json:"darkMode"`
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "", map[string]interface{}{
		"darkMode":               s.app.Cache.DarkMode(),
		"notificationPermission": s.app.Notifier.Permission(),
	})
}

func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settings
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.DarkMode == nil {
		s.writeError(w, r, fmt.Errorf("%w: darkMode is required", app.ErrInvalidInput))
		return
	}
	if err := s.app.SetDarkMode(r.Context(), *req.DarkMode); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Settings saved", map[string]bool{"darkMode": *req.DarkMode})
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	user, err := s.app.CurrentUser()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", user)
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	user, err := s.app.SignIn(r.Context(), id.UID, id.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Signed in", user)
}

func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	if err := s.app.SignOut(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Signed out", nil)
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) registerPushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.app.RegisterPushToken(r.Context(), req.Token); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Push token registered", nil)
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (s *Server) passwordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	link, err := s.app.PasswordResetLink(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Password reset link created", map[string]string{"link": link})
}
