package chat

import "errors"

// Action errors. Only ErrDuplicateUsername is ever reported to a client;
// the rest are returned to the transport for logging and otherwise ignored.
var (
	ErrDuplicateUsername = errors.New("username already taken")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNoActiveSession   = errors.New("no active session")
	ErrAlreadyJoined     = errors.New("connection already has a session")
	ErrRoomAlreadyExists = errors.New("room already exists")
	ErrRoomNotFound      = errors.New("room not found")
	ErrEngineStopped     = errors.New("engine stopped")
)
