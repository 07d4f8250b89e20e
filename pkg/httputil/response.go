package httputil

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeveda/records-api/pkg/errors"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Response wraps all API responses
type Response struct {
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Filters    interface{} `json:"filters,omitempty"`
}

// ErrorBody is the body of every non-2xx response.
type ErrorBody struct {
	Error     string      `json:"error"`
	Message   string      `json:"message,omitempty"`
	Timestamp string      `json:"timestamp"`
	Path      string      `json:"path,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// PageParams is the parsed page/limit pair of a list request.
type PageParams struct {
	Page  int
	Limit int
}

// Offset returns the row offset for the page.
func (p PageParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

// NewPagination computes the metadata for a page of a total result set.
func NewPagination(p PageParams, total int) *Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = int(math.Ceil(float64(total) / float64(p.Limit)))
	}
	return &Pagination{Page: p.Page, Limit: p.Limit, Total: total, TotalPages: pages}
}

// ParsePage reads page and limit query parameters. Malformed or
// out-of-range values fall back to the defaults.
func ParsePage(c *gin.Context, defaultLimit int) PageParams {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	p := PageParams{Page: DefaultPage, Limit: defaultLimit}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		p.Limit = v
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// RespondWithSuccess sends a 200 envelope
func RespondWithSuccess(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{Message: message, Data: data})
}

// RespondWithCreated sends a 201 envelope
func RespondWithCreated(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, Response{Message: message, Data: data})
}

// RespondWithPagination sends a paginated envelope
func RespondWithPagination(c *gin.Context, message string, data interface{}, p PageParams, total int) {
	c.JSON(http.StatusOK, Response{
		Message:    message,
		Data:       data,
		Pagination: NewPagination(p, total),
	})
}

// RespondWithError writes the error body for err and aborts the chain.
func RespondWithError(c *gin.Context, err error, verbose bool) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.Internal(err)
	}

	body := ErrorBody{
		Error:     appErr.Label(),
		Message:   appErr.Message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
		RequestID: c.GetString("request_id"),
	}
	if verbose {
		body.Details = appErr.Details
		if body.Details == nil && appErr.Err != nil {
			body.Details = appErr.Err.Error()
		}
	}

	c.AbortWithStatusJSON(appErr.StatusCode(), body)
}
