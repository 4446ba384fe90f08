package httpx

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/ageniuscoder/tradechat/internal/utils"
)

func OK(c *gin.Context, v any) {
	c.JSON(http.StatusOK, v)
}

func Err(c *gin.Context, code int, msg any) {
	c.JSON(code, gin.H{"error": msg})
}

// BindErr reports a failed ShouldBindJSON, expanding validator errors per field.
func BindErr(c *gin.Context, err error) {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		Err(c, http.StatusBadRequest, utils.ValidationErr(validationErrors))
		return
	}
	Err(c, http.StatusBadRequest, err.Error())
}
