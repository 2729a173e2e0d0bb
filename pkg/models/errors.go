package models

import "errors"

var (
	ErrUnknownStepType    = errors.New("unknown step type")
	ErrUnknownTriggerType = errors.New("unknown trigger type")
	ErrInvalidTrigger     = errors.New("invalid trigger")
)
