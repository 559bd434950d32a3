package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tweetscape/indexer/internal/domain"
	"github.com/tweetscape/indexer/internal/service"
	"github.com/tweetscape/indexer/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation error", domain.ErrEmptyAccountList, http.StatusBadRequest},
		{"invalid entity", fmt.Errorf("%w: bad", store.ErrInvalidEntity), http.StatusBadRequest},
		{"service not found", service.ErrTaskNotFound, http.StatusNotFound},
		{"store not found", store.ErrTaskNotFound, http.StatusNotFound},
		{"illegal transition", fmt.Errorf("%w: done -> processing", store.ErrIllegalTransition), http.StatusConflict},
		{"wrapped store error", store.NewStoreError("task", "get", "lookup failed", store.ErrTaskNotFound), http.StatusNotFound},
		{"store error around unknown cause", store.NewStoreError("task", "save", "insert failed", errors.New("disk full")), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Task not found", GetSafeErrorMessage(service.ErrTaskNotFound))
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))

	// Internal error details never surface.
	internal := errors.New("pq: connection refused host=10.0.0.5 password=hunter2")
	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(internal))
}
