package utils

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("010 0123 4567", "EG")
	require.NoError(t, err)
	assert.Equal(t, "+201001234567", got)

	_, err = NormalizePhone("12", "EG")
	require.Error(t, err)
}

func TestNormalizeContact(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  010 0123 4567 ", "+201001234567"},
		{"+20 100 123 4567", "+201001234567"},
		{"ali@example.com", "ali@example.com"},
		{" discord: ali#1 ", "discord: ali#1"},
		{"12", "12"},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeContact(tt.in, "EG"), tt.in)
	}
}

func TestValidationErr(t *testing.T) {
	type form struct {
		Name string `validate:"required"`
		Kind string `validate:"oneof=a b"`
	}
	err := validator.New().Struct(form{Kind: "c"})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)

	out := ValidationErr(verrs)
	require.Len(t, out, 2)
	assert.Equal(t, CustomErrorResponse{Field: "Name", Tag: "required", Message: "This field is required."}, out[0])
	assert.Equal(t, "Must be one of: a b.", out[1].Message)
}
