package repository

import "errors"

var (
	ErrCalibrationNotFound = errors.New("calibration not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionBusy         = errors.New("session is being updated")
)
