package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// notFoundCodes maps service.NotFoundError resources to response codes.
var notFoundCodes = map[string]response.ErrCode{
	"session":  response.ErrSessionNotFound,
	"question": response.ErrQuestionNotFound,
	"subject":  response.ErrSubjectNotFound,
}

// failFromService writes the envelope for a service error. forbidden is the
// code used for service.ErrForbidden so each route can say who it wanted.
// Anything unrecognised is logged and reported as INTERNAL_ERROR.
func failFromService(c *gin.Context, log zerolog.Logger, err error, forbidden response.ErrCode) {
	var verr *service.ValidationError
	var nferr *service.NotFoundError

	switch {
	case errors.As(err, &verr):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, verr.Fields)
	case errors.As(err, &nferr):
		code, ok := notFoundCodes[nferr.Resource]
		if !ok {
			code = response.ErrNotFound
		}
		response.Fail(c, http.StatusNotFound, code)
	case errors.Is(err, service.ErrForbidden):
		response.Fail(c, http.StatusForbidden, forbidden)
	case errors.Is(err, service.ErrSessionExpired):
		response.Fail(c, http.StatusConflict, response.ErrSessionExpired)
	default:
		log.Error().Err(err).
			Str("request_id", response.RequestID(c)).
			Str("path", c.FullPath()).
			Msg("Request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// errorCode mirrors failFromService for transports without HTTP status
// codes (the WebSocket stream).
func errorCode(err error) response.ErrCode {
	var nferr *service.NotFoundError
	switch {
	case errors.Is(err, service.ErrValidation):
		return response.ErrValidation
	case errors.As(err, &nferr):
		if code, ok := notFoundCodes[nferr.Resource]; ok {
			return code
		}
		return response.ErrNotFound
	case errors.Is(err, service.ErrForbidden):
		return response.ErrNotSessionOwner
	case errors.Is(err, service.ErrSessionExpired):
		return response.ErrSessionExpired
	default:
		return response.ErrInternal
	}
}
