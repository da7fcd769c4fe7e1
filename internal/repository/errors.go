package repository

import (
	"errors"
	"net/http"

	"github.com/go-kivik/kivik/v4"
)

var ErrNotFound = errors.New("not found")

func isCouchNotFound(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusNotFound
}
