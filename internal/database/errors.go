package database

import "errors"

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("database write timed out")
	ErrNilAnswer     = errors.New("answer cannot be nil")
)
