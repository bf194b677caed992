package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/logosim/models"
)

// respondError writes err as a structured JSON error with a status
// derived from its code.
func respondError(c *gin.Context, err error) {
	detail := models.DetailOf(err)
	c.JSON(statusFor(detail.Code), models.ErrorResponse{Success: false, Error: detail})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error:   &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: msg},
	})
}

// statusFor translates error codes to HTTP status codes.
func statusFor(code string) int {
	switch code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeDecode, models.ErrCodeValidation:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeNetwork:
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}
