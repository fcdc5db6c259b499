package errors

import "fmt"

var (
	// ErrAuth rejects a connection before any session is created.
	ErrAuth = fmt.Errorf("authentication failed")
	// ErrNotFound marks an absent session, room or user.
	// Callers treat it as benign and turn the operation into a no-op.
	ErrNotFound     = fmt.Errorf("not found")
	ErrWorkerPanic  = fmt.Errorf("worker panic")
	ErrRoomPassword = fmt.Errorf("wrong room password")
)
