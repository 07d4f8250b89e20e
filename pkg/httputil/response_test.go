package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeveda/records-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		query string
		want  PageParams
	}{
		{"", PageParams{Page: 1, Limit: 20}},
		{"page=3&limit=5", PageParams{Page: 3, Limit: 5}},
		{"page=-1&limit=abc", PageParams{Page: 1, Limit: 20}},
		{"limit=1000", PageParams{Page: 1, Limit: MaxLimit}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			assert.Equal(t, tt.want, ParsePage(c, 0))
		})
	}
}

func TestPagination(t *testing.T) {
	p := PageParams{Page: 2, Limit: 20}
	assert.Equal(t, 20, p.Offset())

	meta := NewPagination(p, 41)
	assert.Equal(t, 3, meta.TotalPages)
	assert.Equal(t, 0, NewPagination(p, 0).TotalPages)
}

func TestRespondWithError(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/codes", nil)

	RespondWithError(c, errors.Conflict("NAMASTE code already exists", fmt.Errorf("dup")), false)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.True(t, c.IsAborted())

	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Conflict", body.Error)
	assert.Equal(t, "NAMASTE code already exists", body.Message)
	assert.Equal(t, "/api/codes", body.Path)
	assert.Nil(t, body.Details)
}

func TestRespondWithErrorWrapsUnknownErrors(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/users", nil)

	RespondWithError(c, fmt.Errorf("connection reset"), true)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "connection reset", body.Details)
}
