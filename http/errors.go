package http

import (
	"errors"
	"fmt"

	"github.com/sagarc03/stashbox"
)

var (
	// ErrMissingBearer is returned when a request carries no bearer token.
	ErrMissingBearer = fmt.Errorf("%w: missing bearer token", stashbox.ErrUnauthorized)
	// ErrMissingOwner is returned when an authenticated route runs without an owner in its context.
	ErrMissingOwner = fmt.Errorf("%w: no owner in request context", stashbox.ErrUnauthorized)

	errInvalidBody = errors.New("invalid request body")
)
