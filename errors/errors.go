package errors

import "fmt"

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrMissingCredential = fmt.Errorf("missing credential")
	ErrInvalidCredential = fmt.Errorf("invalid credential")
	ErrUnknownConnection = fmt.Errorf("unknown connection")
	ErrNotJoined         = fmt.Errorf("connection has not joined this room")
	ErrSlowConsumer      = fmt.Errorf("outbound queue full")
	ErrEmptyMessage      = fmt.Errorf("empty message body")
	ErrMessageNotFound   = fmt.Errorf("message not found")
	ErrEmptyUpload       = fmt.Errorf("empty upload")
)
