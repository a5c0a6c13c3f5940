package model

import "github.com/m-mizutani/goerr/v2"

var (
	ErrSessionNotFound = goerr.New("session not found")
	ErrMemoryNotFound  = goerr.New("memory not found")
	ErrInvalidMemory   = goerr.New("invalid memory entry")
	ErrDuplicateMemory = goerr.New("duplicate memory entry")
	ErrInvalidIndex    = goerr.New("invalid message index")
	ErrNoPrecedingUser = goerr.New("no preceding user message found to regenerate from")
	ErrUnsupported     = goerr.New("capability not supported on this platform")
	ErrNotReady        = goerr.New("resource not ready")
	ErrRemoteStatus    = goerr.New("remote endpoint returned non-success status")
	ErrSuperseded      = goerr.New("operation superseded by a newer one")
	ErrNotRunning      = goerr.New("screensaver is not running")
)
