package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"smokehouse/internal/models"
	"smokehouse/internal/repository"
)

const defaultTailBytes = 16 << 10

// ErrInvalidFilter wraps every filter validation failure.
var ErrInvalidFilter = errors.New("invalid log filter")

var (
	errInvalidTimeRange = fmt.Errorf("%w: From must be <= To", ErrInvalidFilter)
	errUnknownEventType = fmt.Errorf("%w: unknown event type", ErrInvalidFilter)
	errNoLogFile        = errors.New("log file unavailable")
)

// LogTailer reads the end of the flash log file. *storage.LogFile satisfies it.
type LogTailer interface {
	Tail(n int64) ([]byte, error)
}

type EventLogService struct {
	eventRepo repository.EventRepo
	logFile   LogTailer
}

func NewEventLogService(eventRepo repository.EventRepo, logFile LogTailer) *EventLogService {
	return &EventLogService{eventRepo: eventRepo, logFile: logFile}
}

// normalizeAndValidateFilter prepares query parameters and validates the
// time range and event type.
func normalizeAndValidateFilter(f LogFilter) (time.Time, time.Time, string, error) {
	from, to := f.From, f.To
	if !from.IsZero() {
		from = from.UTC()
	}
	if !to.IsZero() {
		to = to.UTC()
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, "", errInvalidTimeRange
	}

	typ := strings.ToUpper(strings.TrimSpace(f.Type))
	if typ != "" && !slices.Contains(models.EventTypes, typ) {
		return time.Time{}, time.Time{}, "", errUnknownEventType
	}
	return from, to, typ, nil
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]models.ProcessEvent, error) {
	from, to, typ, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	return s.eventRepo.List(ctx, from, to, typ)
}

// Tail returns up to n bytes from the end of the flash log file.
func (s *EventLogService) Tail(_ context.Context, n int64) ([]byte, error) {
	if s.logFile == nil {
		return nil, errNoLogFile
	}
	if n <= 0 {
		n = defaultTailBytes
	}
	return s.logFile.Tail(n)
}
