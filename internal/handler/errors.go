package handler

import (
	"errors"
	"net/http"

	"quicknotes/internal/service"
	"quicknotes/pkg/response"

	"github.com/golang/glog"
)

// writeServiceError maps service errors onto HTTP statuses. Anything not
// recognised is logged and reported as a 500 with a generic message.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var validationErr *service.ValidationError

	switch {
	case errors.As(err, &validationErr):
		response.BadRequest(w, validationErr.Error())
	case errors.Is(err, service.ErrNoteNotFound), errors.Is(err, service.ErrUserNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(w, err.Error())
	case errors.Is(err, service.ErrEmailTaken), errors.Is(err, service.ErrUsernameTaken):
		response.Error(w, http.StatusConflict, err.Error())
	default:
		glog.Errorf("%s: %v", fallback, err)
		response.InternalError(w, fallback)
	}
}
