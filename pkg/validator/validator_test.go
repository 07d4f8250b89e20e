package validator

import (
	"fmt"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,role"`
	Visit    string `json:"visit_date" validate:"omitempty,dateonly"`
}

func newValidate(t *testing.T) *validator.Validate {
	v := validator.New()
	require.NoError(t, Register(v))
	return v
}

func TestCustomTags(t *testing.T) {
	v := newValidate(t)

	ok := registerRequest{Email: "a@b.in", Password: "secret", Role: "doctor", Visit: "2024-03-01"}
	assert.NoError(t, v.Struct(ok))

	bad := ok
	bad.Role = "nurse"
	err := v.Struct(bad)
	require.Error(t, err)
	assert.Equal(t, []FieldError{{Field: "role", Message: "role must be one of: admin, doctor, patient"}}, Fields(err))

	bad = ok
	bad.Visit = "01/03/2024"
	assert.Equal(t, "visit_date must be a date in YYYY-MM-DD format", Message(v.Struct(bad)))
}

func TestOneOfMessage(t *testing.T) {
	v := newValidate(t)

	type createVisit struct {
		Status string `json:"status" validate:"omitempty,oneof=draft completed"`
	}
	assert.NoError(t, v.Struct(createVisit{Status: "draft"}))
	assert.Equal(t, "status must be one of: draft, completed", Message(v.Struct(createVisit{Status: "cancelled"})))
}

func TestMessages(t *testing.T) {
	v := newValidate(t)

	err := v.Struct(registerRequest{Email: "nope", Password: "123"})
	fields := Fields(err)
	require.Len(t, fields, 2)
	assert.Equal(t, "Valid email is required", fields[0].Message)
	assert.Equal(t, "password must be at least 6 characters long", fields[1].Message)
}

func TestMessageForNonValidationError(t *testing.T) {
	assert.Nil(t, Fields(fmt.Errorf("unexpected EOF")))
	assert.Equal(t, "Invalid request body", Message(fmt.Errorf("unexpected EOF")))
}
