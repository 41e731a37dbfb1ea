package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/yogaroll/internal/app"
	"github.com/shrimpsizemoose/yogaroll/internal/metrics"
	"github.com/shrimpsizemoose/yogaroll/internal/models"
)

type AttendanceHandler struct {
	service *app.Service
}

func NewAttendanceHandler(service *app.Service) *AttendanceHandler {
	return &AttendanceHandler{
		service: service,
	}
}

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type markRequest struct {
	StudentID int64 `json:"student_id"`
	Present   *bool `json:"present"`
}

type reportResponse struct {
	Date string               `json:"date"`
	Rows []models.RosterEntry `json:"rows"`
}

type errorResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Routes mounts every endpoint on a fresh mux.
func (h *AttendanceHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/students", h.instrument(h.HandleListStudents))
	mux.HandleFunc("POST /api/v1/students", h.instrument(h.HandleRegisterStudent))
	mux.HandleFunc("GET /api/v1/attendance/today", h.instrument(h.HandleTodayAttendance))
	mux.HandleFunc("POST /api/v1/attendance/toggle", h.instrument(h.HandleToggleAttendance))
	mux.HandleFunc("GET /api/v1/attendance/{date}", h.instrument(h.HandleDailyReport))
	mux.HandleFunc("PUT /api/v1/attendance/{date}/{student}", h.instrument(h.HandleSetAttendance))
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *AttendanceHandler) instrument(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			duration := time.Since(start).Seconds()
			metrics.APIRequestDuration.WithLabelValues(
				r.Pattern,
				r.Method,
				strconv.Itoa(rec.status),
			).Observe(duration)
		}()
		next(rec, r)
	}
}

func (h *AttendanceHandler) HandleListStudents(w http.ResponseWriter, r *http.Request) {
	roster, err := h.service.RosterSummary(r.Context())
	if err != nil {
		logger.Error.Printf("Failed to list students: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch students", nil)
		return
	}

	writeJSON(w, http.StatusOK, roster)
}

func (h *AttendanceHandler) HandleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", nil)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid form body", nil)
			return
		}
		req.FirstName = r.PostForm.Get("first_name")
		req.LastName = r.PostForm.Get("last_name")
		req.Phone = r.PostForm.Get("phone")
	}

	id, err := h.service.RegisterStudent(r.Context(), req.FirstName, req.LastName, req.Phone)
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "Invalid student: "+verr.Summary(), verr.Fields)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to register student", nil)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"id":      id,
		"message": "Student registered",
	})
}

func (h *AttendanceHandler) HandleTodayAttendance(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.ListTodayAttendance(r.Context())
	if err != nil {
		logger.Error.Printf("Failed to fetch today's attendance: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch attendance", nil)
		return
	}

	writeJSON(w, http.StatusOK, reportResponse{
		Date: models.FormatDay(h.service.Today()),
		Rows: rows,
	})
}

func (h *AttendanceHandler) HandleToggleAttendance(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudentID <= 0 || req.Present == nil {
		writeError(w, http.StatusBadRequest, "student_id and present are required", nil)
		return
	}

	err := h.service.SetAttendanceFrom(r.Context(), app.SourceWeb, req.StudentID, h.service.Today(), *req.Present)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update attendance", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *AttendanceHandler) HandleDailyReport(w http.ResponseWriter, r *http.Request) {
	day, err := models.ParseDay(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, use YYYY-MM-DD", nil)
		return
	}

	rows, err := h.service.DailyReport(r.Context(), day)
	if err != nil {
		logger.Error.Printf("Failed to fetch report for %s: %v", models.FormatDay(day), err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch attendance", nil)
		return
	}

	writeJSON(w, http.StatusOK, reportResponse{
		Date: models.FormatDay(day),
		Rows: rows,
	})
}

func (h *AttendanceHandler) HandleSetAttendance(w http.ResponseWriter, r *http.Request) {
	day, err := models.ParseDay(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date, use YYYY-MM-DD", nil)
		return
	}

	studentID, err := strconv.ParseInt(r.PathValue("student"), 10, 64)
	if err != nil || studentID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid student id", nil)
		return
	}

	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Present == nil {
		writeError(w, http.StatusBadRequest, "present is required", nil)
		return
	}

	if err := h.service.SetAttendanceFrom(r.Context(), app.SourceWeb, studentID, day, *req.Present); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update attendance", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *AttendanceHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		logger.Error.Printf("Health check failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, fields map[string]string) {
	writeJSON(w, status, errorResponse{
		Success: false,
		Message: message,
		Fields:  fields,
	})
}
