package util

import (
	"context"
	"errors"
	"github.com/cenkalti/backoff/v4"
	"time"
)

const (
	ShortReqTimeout = 30 * time.Second
	MedReqTimeout   = 5 * time.Minute
	LongReqTimeout  = 60 * time.Minute
)

// Permanent stops backoff retries for errors that a retry cannot fix.
func Permanent(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	return err
}
