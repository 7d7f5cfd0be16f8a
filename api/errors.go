package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rishta/apperr"
)

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func statusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeNotAuthenticated:
		return http.StatusUnauthorized
	case apperr.CodeInvalidArgument, apperr.CodeInvalidMessage, apperr.CodeSelfRequest:
		return http.StatusBadRequest
	case apperr.CodeNotAParticipant:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeAlreadyExists:
		return http.StatusConflict
	case apperr.CodePersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	status := statusOf(code)

	message := "internal error"
	var ae *apperr.AppError
	if errors.As(err, &ae) && status < http.StatusInternalServerError {
		message = ae.Message
	}
	if status >= http.StatusInternalServerError {
		c.Error(err)
		if status == http.StatusServiceUnavailable {
			message = "temporarily unavailable, try again"
		}
	}
	c.AbortWithStatusJSON(status, errorBody{Error: errorDetail{Code: string(code), Message: message}})
}

func badRequest(c *gin.Context, err error) {
	abortWithError(c, apperr.Wrap(apperr.CodeInvalidArgument, "invalid request: "+err.Error(), err))
}
