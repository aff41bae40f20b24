package appstate

import "errors"

var errInvalidTransition = errors.New("invalid state transition")
