package model

import "errors"

var (
	ErrInvalidJobID = errors.New("invalid job id")
	ErrJobNotFound  = errors.New("job not found")
)
