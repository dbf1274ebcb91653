package cron

import "errors"

// ErrJobNotFound is returned by RunJob for an unknown schedule id.
var ErrJobNotFound = errors.New("schedule not found")
