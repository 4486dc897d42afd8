package correlation

import (
	"context"
	"errors"
)

var (
	ErrCallLogNotFound   = errors.New("call log not found")
	ErrCallStartNotFound = errors.New("call start not found")
	// ErrCorrelationMissing marks an end-of-call report with no booking.
	// It is logged, never returned to the webhook caller.
	ErrCorrelationMissing = errors.New("no booking for call")
)

type Repository interface {
	// InsertCallStart reports false when the call already has a start row.
	InsertCallStart(ctx context.Context, cs CallStart) (bool, error)
	GetCallStart(ctx context.Context, callID string) (*CallStart, error)

	InsertCallLog(ctx context.Context, log CallLog) (*CallLog, error)
	LatestCallLog(ctx context.Context, callID string) (*CallLog, error)
	GetCallLog(ctx context.Context, id int64) (*CallLog, error)
	ListCallLogs(ctx context.Context, limit, offset int) ([]CallLog, error)
}
