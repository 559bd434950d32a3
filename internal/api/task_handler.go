package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tweetscape/indexer/internal/api/shared"
	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/service"
)

// SubmitTaskRequest represents the request body for submitting an indexing
// task
type SubmitTaskRequest struct {
	RequesterID string   `json:"requester_id" validate:"required,min=1"`
	AccountIDs  []string `json:"account_ids"  validate:"required,min=1,dive,required"`
	Kind        string   `json:"kind"         validate:"omitempty,oneof=timeline following"`
}

// TaskResponse represents the response data for a task
type TaskResponse struct {
	ID           string    `json:"task_id"`
	RequesterID  string    `json:"requester_id"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	FailureCause string    `json:"failure_cause,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	taskService service.TaskService
	validator   *validator.Validate
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(taskService service.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		validator:   validator.New(),
	}
}

// SubmitTask handles POST /api/tasks requests
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	task, err := h.taskService.SubmitTask(
		r.Context(),
		req.RequesterID,
		req.AccountIDs,
		domain.TaskKind(req.Kind),
	)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	// Processing happens asynchronously, hence 202
	shared.RespondWithJSON(w, r, http.StatusAccepted, taskToDTOResponse(task))
}

// GetTask handles GET /api/tasks/{id} requests
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, GetSafeErrorMessage(err))
		return
	}

	task, err := h.taskService.GetTask(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r,
			MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToDTOResponse(task))
}

// taskToDTOResponse converts a domain.Task to a TaskResponse
func taskToDTOResponse(task *domain.Task) TaskResponse {
	return TaskResponse{
		ID:           task.ID.String(),
		RequesterID:  task.RequesterID,
		Kind:         string(task.Kind),
		Status:       string(task.Status),
		FailureCause: task.FailureCause,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
	}
}
