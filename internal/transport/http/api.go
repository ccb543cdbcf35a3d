package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"checkin-sync-service/internal/app"
	"checkin-sync-service/internal/domain"
)

// AttendanceStore is the storage behind the attendance endpoints.
type AttendanceStore interface {
	Upsert(ctx context.Context, rec domain.AssignmentRecord, status, notes string) (domain.AssignmentRecord, error)
	List(ctx context.Context, classID int64, date string) ([]domain.AssignmentRecord, error)
}

// RosterRepository serves class rosters from the cache layer.
type RosterRepository interface {
	ListStudents(ctx context.Context, classID int64) ([]domain.Student, error)
}

// QuestionBank serves question pools and persists rotation stamps.
type QuestionBank interface {
	Pool(ctx context.Context, teacherID int64, categories []string) ([]domain.Question, error)
	TouchLastUsed(ctx context.Context, questionID int64, at time.Time) error
}

// API exposes the attendance upsert/read path and the question rotation
// endpoint consumed by viewer sessions.
type API struct {
	store    AttendanceStore
	bank     QuestionBank
	roster   RosterRepository
	selector *app.Selector
	now      func() time.Time
}

func NewAPI(store AttendanceStore, bank QuestionBank, selector *app.Selector) *API {
	return &API{store: store, bank: bank, selector: selector, now: time.Now}
}

// WithRoster enables the /students read path.
func (a *API) WithRoster(roster RosterRepository) *API {
	a.roster = roster
	return a
}

// Register mounts the API routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/attendance", a.handleAttendance)
	mux.HandleFunc("/questions/next", a.handleNextQuestion)
	mux.HandleFunc("/students", a.handleStudents)
}

func (a *API) handleStudents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.roster == nil {
		http.Error(w, "roster not configured", http.StatusNotFound)
		return
	}
	classID, err := strconv.ParseInt(r.URL.Query().Get("classId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid classId", http.StatusBadRequest)
		return
	}
	students, err := a.roster.ListStudents(r.Context(), classID)
	if err != nil {
		if errors.Is(err, domain.ErrClassNotFound) {
			http.Error(w, "class not found", http.StatusNotFound)
			return
		}
		log.Printf("list students: %v", err)
		http.Error(w, "roster unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, students)
}

func (a *API) handleAttendance(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.upsertAttendance(w, r)
	case http.MethodGet:
		a.listAttendance(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type attendanceBody struct {
	StudentID  int64     `json:"studentId"`
	ClassID    int64     `json:"classId"`
	Date       string    `json:"date"`
	QuestionID int64     `json:"questionId"`
	Status     string    `json:"status"`
	Answer     string    `json:"answer"`
	Notes      string    `json:"notes,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (a *API) upsertAttendance(w http.ResponseWriter, r *http.Request) {
	var body attendanceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid attendance payload", http.StatusBadRequest)
		return
	}
	if body.StudentID == 0 || body.ClassID == 0 || body.Date == "" {
		http.Error(w, "missing studentId, classId, or date", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse("2006-01-02", body.Date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	stored, err := a.store.Upsert(r.Context(), domain.AssignmentRecord{
		StudentID:  body.StudentID,
		ClassID:    body.ClassID,
		Date:       body.Date,
		QuestionID: body.QuestionID,
		Answer:     body.Answer,
		UpdatedAt:  body.UpdatedAt,
	}, body.Status, body.Notes)
	if err != nil {
		log.Printf("upsert attendance: %v", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, stored)
}

func (a *API) listAttendance(w http.ResponseWriter, r *http.Request) {
	classID, err := strconv.ParseInt(r.URL.Query().Get("classId"), 10, 64)
	if err != nil {
		http.Error(w, "invalid classId", http.StatusBadRequest)
		return
	}
	date := r.URL.Query().Get("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	records, err := a.store.List(r.Context(), classID, date)
	if err != nil {
		log.Printf("list attendance: %v", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

type nextQuestionRequest struct {
	TeacherID  int64    `json:"teacherId"`
	Categories []string `json:"categories,omitempty"`
}

type nextQuestionResponse struct {
	Question  domain.Question `json:"question"`
	Exhausted bool            `json:"exhausted"`
}

func (a *API) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req nextQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid question request", http.StatusBadRequest)
		return
	}
	if req.TeacherID == 0 {
		http.Error(w, "missing teacherId", http.StatusBadRequest)
		return
	}

	pool, err := a.bank.Pool(r.Context(), req.TeacherID, req.Categories)
	if err != nil {
		log.Printf("load question pool: %v", err)
		http.Error(w, "question bank unavailable", http.StatusInternalServerError)
		return
	}

	question, exhausted, err := a.selector.Next(pool)
	if errors.Is(err, domain.ErrEmptyPool) {
		http.Error(w, "question pool is empty", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "selection failed", http.StatusInternalServerError)
		return
	}

	if err := a.bank.TouchLastUsed(r.Context(), question.ID, a.now()); err != nil {
		// The pick is still valid; a missed stamp only widens the window.
		log.Printf("stamp question %d: %v", question.ID, err)
	}
	writeJSON(w, nextQuestionResponse{Question: question, Exhausted: exhausted})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
