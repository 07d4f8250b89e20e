package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDB(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"no rows", sql.ErrNoRows, http.StatusNotFound, "Resource not found"},
		{"wrapped no rows", fmt.Errorf("failed to get code: %w", sql.ErrNoRows), http.StatusNotFound, "Resource not found"},
		{"unique violation", &pq.Error{Code: "23505"}, http.StatusConflict, "Resource already exists"},
		{"foreign key", &pq.Error{Code: "23503"}, http.StatusBadRequest, "Referenced resource not found"},
		{"privilege", &pq.Error{Code: "42501"}, http.StatusForbidden, "Access denied"},
		{"other pg code", &pq.Error{Code: "40001"}, http.StatusInternalServerError, "Database error occurred"},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr, ok := As(FromDB(tt.err))
			require.True(t, ok)
			assert.Equal(t, tt.status, appErr.StatusCode())
			assert.Equal(t, tt.message, appErr.Message)
		})
	}
}

func TestFromDBPassesThroughAppErrors(t *testing.T) {
	orig := BadRequest("No data to update", nil)
	assert.Same(t, orig, FromDB(orig))
	assert.Nil(t, FromDB(nil))
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NotFound("Visit", nil))
	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrConflict))
	assert.Equal(t, "Visit not found", err.(interface{ Unwrap() error }).Unwrap().Error())
}
