package database

import "errors"

// ErrClosed indicates the connection has been closed; callers must construct
// a new Manager rather than reuse the identity.
var ErrClosed = errors.New("database: connection closed")
