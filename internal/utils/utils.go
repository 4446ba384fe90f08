package utils

import (
	"github.com/go-playground/validator/v10"
)

type CustomErrorResponse struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func ValidationErr(err validator.ValidationErrors) []CustomErrorResponse {
	var errors []CustomErrorResponse
	for _, fieldErr := range err {
		errors = append(errors, CustomErrorResponse{
			Field:   fieldErr.Field(),
			Tag:     fieldErr.ActualTag(),
			Message: GetErrorMessage(fieldErr),
		})
	}
	return errors
}

func GetErrorMessage(fe validator.FieldError) string {
	switch fe.ActualTag() {
	case "required":
		return "This field is required."
	case "required_if":
		return "This field is required for the chosen exchange type."
	case "oneof":
		return "Must be one of: " + fe.Param() + "."
	case "max":
		return "Must be at most " + fe.Param() + " long."
	case "gt":
		return "Must be greater than " + fe.Param() + "."
	case "nefield":
		return "Must differ from " + fe.Param() + "."
	default:
		return "Unknown validation error."
	}
}
