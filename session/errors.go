// errors.go defines error types for the session package.

package session

type ErrSessionClosed struct{}

func (ErrSessionClosed) Error() string {
	return "the session is already closed"
}
