package service

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrSessionNotFound = errors.New("live session not found")
	ErrInvalidMessage  = errors.New("invalid message payload")
	ErrInvalidInput    = errors.New("missing or malformed parameter")
	ErrInternalServer  = errors.New("internal server error")
)
