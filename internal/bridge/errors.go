package bridge

import (
	"errors"
	"fmt"
)

// ErrUnsupportedOperation rejects commands the bridge cannot perform, such
// as requesting artwork for a non-album reference.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// ErrNotLoggedIn rejects commands that need an active session.
var ErrNotLoggedIn = errors.New("not logged in")

// NotLoadedError reports that a session object never became loaded within
// the wait timeout. Recoverable: the caller may retry or give up on the
// object without tearing anything down.
type NotLoadedError struct {
	Object any
}

func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("session object never loaded: %#v", e.Object)
}
