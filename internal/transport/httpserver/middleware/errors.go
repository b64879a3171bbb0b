package middleware

import (
	"errors"
	"fmt"
)

var errMissingPartner = errors.New("identity response has no partner id")

type lookupError struct {
	status int
}

func (e *lookupError) Error() string {
	return fmt.Sprintf("identity service answered %d", e.status)
}
