package service

import (
	"context"
	"errors"
	"sync"

	"kiln_control/internal/ipc"
	"kiln_control/internal/models"
)

// MonitoringService reads the shared status block. The mapping is opened
// lazily and reopened when the daemon restarts and recreates the block.
type MonitoringService struct {
	path string

	mu    sync.Mutex
	block *ipc.StatusBlock
}

func NewMonitoringService(path string) *MonitoringService {
	return &MonitoringService{path: path}
}

// GetStatus returns the latest published status, or ipc.ErrStatusUnavailable
// when no daemon is publishing.
func (s *MonitoringService) GetStatus(ctx context.Context) (models.LiveStatus, error) {
	if err := ctx.Err(); err != nil {
		return models.LiveStatus{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.block != nil {
		st, err := s.block.Read()
		if err == nil {
			return st, nil
		}
		// stale mapping of a block the daemon has since replaced
		_ = s.block.Close()
		s.block = nil
	}

	block, err := ipc.OpenStatusBlock(s.path)
	if err != nil {
		return models.LiveStatus{}, errors.Join(ipc.ErrStatusUnavailable, err)
	}
	st, err := block.Read()
	if err != nil {
		_ = block.Close()
		return models.LiveStatus{}, err
	}
	s.block = block
	return st, nil
}

// Close releases the mapping.
func (s *MonitoringService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.block == nil {
		return nil
	}
	err := s.block.Close()
	s.block = nil
	return err
}
