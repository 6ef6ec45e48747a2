package jobs

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
)

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0}`, rr.Body.String())
}

func TestIsDuplicate(t *testing.T) {
	assert.True(t, IsDuplicate(fmt.Errorf("enqueue: %w", asynq.ErrTaskIDConflict)))
	assert.True(t, IsDuplicate(asynq.ErrDuplicateTask))
	assert.False(t, IsDuplicate(fmt.Errorf("other")))
	assert.False(t, IsDuplicate(nil))
}
