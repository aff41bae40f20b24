package supervisor

import "errors"

var ErrJoinTimeout = errors.New("task did not finish within the wait limit")
