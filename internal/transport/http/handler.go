package httptransport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"blood-report-service/internal/entity"
	"blood-report-service/internal/repository"
	"blood-report-service/internal/service"
	"blood-report-service/internal/telemetry"
)

// multipart parts beyond this stay on disk while parsing
const multipartMemory = 8 << 20

type TaskService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*entity.Task, error)
	Get(ctx context.Context, id string) (*entity.Task, error)
}

type Handler struct {
	tasks     TaskService
	maxUpload int64
	logger    *slog.Logger
}

func NewHandler(tasks TaskService, maxUpload int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{tasks: tasks, maxUpload: maxUpload, logger: logger}
}

type messageResp struct {
	Message string `json:"message"`
}

type analyzeResp struct {
	Message        string `json:"message" example:"Analysis has been started. Please check the result later."`
	TaskID         string `json:"task_id" example:"0b6f9a4e-6c1e-4f5e-9d8e-2a1c3b4d5e6f"`
	StatusEndpoint string `json:"status_endpoint" example:"/result/0b6f9a4e-6c1e-4f5e-9d8e-2a1c3b4d5e6f"`
}

type resultResp struct {
	TaskID    string            `json:"task_id"`
	Status    entity.TaskStatus `json:"status" example:"COMPLETED"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	Analysis  *string           `json:"analysis,omitempty"`
	Error     *string           `json:"error,omitempty"`
}

// Root godoc
// @Summary Health message
// @Tags health
// @Produce json
// @Success 200 {object} messageResp
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, messageResp{Message: "Blood Test Report Analyser API is running"})
}

// Analyze godoc
// @Summary Upload a blood test report for analysis
// @Description Stores the PDF, creates a PENDING task and queues it. Poll status_endpoint for the result.
// @Tags analysis
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "blood test report (PDF)"
// @Param query formData string false "question about the report" default(Summarise my Blood Test Report)
// @Success 202 {object} analyzeResp
// @Failure 400 {object} apiError
// @Failure 401 {object} apiError
// @Failure 500 {object} apiError
// @Router /analyze [post]
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			h.reject(w, r, fmt.Sprintf("file too large: limit is %d bytes", h.maxUpload))
			return
		}
		h.reject(w, r, "invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.reject(w, r, "file is required")
		return
	}
	defer file.Close()

	task, err := h.tasks.Submit(r.Context(), service.SubmitRequest{
		FileName: header.Filename,
		Query:    r.FormValue("query"),
		File:     file,
	})
	if err != nil {
		telemetry.APITasksSubmitted.WithLabelValues("error").Inc()
		h.logger.Error("analyze failed", slog.String("error", err.Error()))
		writeErr(w, r, http.StatusInternalServerError, "An unexpected error occurred: "+err.Error())
		return
	}

	telemetry.APITasksSubmitted.WithLabelValues("accepted").Inc()
	writeJSON(w, http.StatusAccepted, analyzeResp{
		Message:        "Analysis has been started. Please check the result later.",
		TaskID:         task.ID,
		StatusEndpoint: "/result/" + task.ID,
	})
}

// GetResult godoc
// @Summary Get analysis status and result
// @Tags analysis
// @Produce json
// @Param task_id path string true "task id (uuid)"
// @Success 200 {object} resultResp
// @Failure 401 {object} apiError
// @Failure 404 {object} apiError
// @Failure 500 {object} apiError
// @Router /result/{task_id} [get]
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")

	task, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeErr(w, r, http.StatusNotFound, "Task not found")
			return
		}
		h.logger.Error("get result failed", slog.String("task_id", id), slog.String("error", err.Error()))
		writeErr(w, r, http.StatusInternalServerError, "An unexpected error occurred: "+err.Error())
		return
	}

	resp := resultResp{
		TaskID:    task.ID,
		Status:    task.Status,
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
		UpdatedAt: task.UpdatedAt.Format(time.RFC3339),
	}
	switch task.Status {
	case entity.StatusCompleted:
		resp.Analysis = task.Result
	case entity.StatusFailed:
		resp.Error = task.Result
	}
	writeJSON(w, http.StatusOK, resp)
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return true
	}
	// some multipart paths flatten the error to text
	return strings.Contains(err.Error(), "request body too large")
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, msg string) {
	telemetry.APITasksSubmitted.WithLabelValues("rejected").Inc()
	writeErr(w, r, http.StatusBadRequest, msg)
}
