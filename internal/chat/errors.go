package chat

import "errors"

var (
	// ErrTurnInProgress is returned when a message is sent, or the streaming
	// message deleted, before the current turn has finished.
	ErrTurnInProgress = errors.New("a response is still streaming")

	// ErrDisconnected is returned when the session was closed while an
	// operation was waiting on the connection.
	ErrDisconnected = errors.New("session disconnected")

	// ErrMessageNotFound is returned when deleting an unknown message.
	ErrMessageNotFound = errors.New("message not found")
)
