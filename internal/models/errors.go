package models

import "errors"

// Error taxonomy shared by the services; handlers map these to status codes.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrTooLarge     = errors.New("payload too large")
	ErrUpstream     = errors.New("agent execution failed")
	ErrParse        = errors.New("could not parse agent response")
)
