package service

import (
	"context"
	"errors"
	"time"

	"kiln_control/internal/repository"
)

// MaxRangeSeconds caps history queries at one week.
const MaxRangeSeconds = 7 * 24 * 3600

var errInvalidRange = errors.New("invalid range: seconds must be between 1 and 604800")

type HistoryService struct {
	logRepo    repository.LogRepo
	firingRepo repository.FiringRepo
}

func NewHistoryService(logRepo repository.LogRepo, firingRepo repository.FiringRepo) *HistoryService {
	return &HistoryService{logRepo: logRepo, firingRepo: firingRepo}
}

// Range returns the last f.Seconds of samples and the step boundaries inside that window.
func (s *HistoryService) Range(ctx context.Context, f RangeFilter) (Trace, error) {
	if f.Seconds <= 0 || f.Seconds > MaxRangeSeconds {
		return Trace{}, errInvalidRange
	}
	now := f.Now
	if now.IsZero() {
		now = time.Now()
	}
	from := now.UTC().Add(-time.Duration(f.Seconds) * time.Second)

	samples, err := s.logRepo.Range(ctx, from)
	if err != nil {
		return Trace{}, err
	}
	bounds, err := s.firingRepo.Boundaries(ctx, from)
	if err != nil {
		return Trace{}, err
	}
	return Trace{Samples: samples, Boundaries: bounds}, nil
}

// Firing returns one firing with its completed steps.
func (s *HistoryService) Firing(ctx context.Context, firingID int) (FiringDetail, error) {
	f, err := s.firingRepo.Get(ctx, firingID)
	if err != nil {
		return FiringDetail{}, err
	}
	steps, err := s.firingRepo.Steps(ctx, firingID)
	if err != nil {
		return FiringDetail{}, err
	}
	return FiringDetail{Firing: f, Steps: steps}, nil
}

// IsInvalidRange reports whether err is a rejected range filter.
func IsInvalidRange(err error) bool {
	return errors.Is(err, errInvalidRange)
}
