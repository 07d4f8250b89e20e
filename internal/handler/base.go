package handler

import (
	"errors"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/codeveda/records-api/internal/model"
	apperrors "github.com/codeveda/records-api/pkg/errors"
	"github.com/codeveda/records-api/pkg/validator"
)

// Fail hands err to the error middleware and stops the chain.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ParseID reads a UUID path parameter. It reports false after answering
// 400 when the value is malformed.
func ParseID(c *gin.Context, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		Fail(c, apperrors.BadRequest("Invalid "+label+" ID format", err))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON decodes and validates the request body into req. It reports
// false after answering 400.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if errors.Is(err, io.EOF) {
			Fail(c, apperrors.BadRequest("Request body is required", err))
			return false
		}
		appErr := apperrors.BadRequest(validator.Message(err), err)
		if fields := validator.Fields(err); len(fields) > 0 {
			appErr = appErr.WithDetails(fields)
		}
		Fail(c, appErr)
		return false
	}
	return true
}

func parseDate(value string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// ParseDateRange reads start_date and end_date as YYYY-MM-DD or RFC 3339.
// Missing bounds stay zero. It reports false after answering 400.
func ParseDateRange(c *gin.Context) (model.DateRange, bool) {
	var r model.DateRange
	for _, b := range []struct {
		param string
		dst   *time.Time
		end   bool
	}{{"start_date", &r.From, false}, {"end_date", &r.To, true}} {
		v := c.Query(b.param)
		if v == "" {
			continue
		}
		t, err := parseDate(v, b.end)
		if err != nil {
			Fail(c, apperrors.BadRequest("Invalid "+b.param+", expected YYYY-MM-DD", err))
			return r, false
		}
		*b.dst = t.UTC()
	}
	return r, true
}
