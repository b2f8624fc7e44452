package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kiln_control/internal/models"
	"kiln_control/internal/repository"
)

var errEmptyName = errors.New("program name is required")

type ProgramService struct {
	repo repository.ProgramRepo
}

func NewProgramService(repo repository.ProgramRepo) *ProgramService {
	return &ProgramService{repo: repo}
}

func (s *ProgramService) List(ctx context.Context) ([]models.ProgramInfo, error) {
	return s.repo.List(ctx)
}

func (s *ProgramService) Get(ctx context.Context, programID int) (models.Program, error) {
	return s.repo.Get(ctx, programID)
}

// Import validates p the same way Start would and stores it as a new program.
// Instructions are stored lowercase.
func (s *ProgramService) Import(ctx context.Context, p models.Program) (int, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return 0, errEmptyName
	}
	if _, err := unroll(p.Steps, 0); err != nil {
		return 0, err
	}
	for i := range p.Steps {
		t, _ := models.ParseInstruction(p.Steps[i].Kind)
		p.Steps[i].Kind = t.Instruction()
	}
	id, err := s.repo.Create(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("import %q: %w", p.Name, err)
	}
	return id, nil
}

func (s *ProgramService) Delete(ctx context.Context, programID int) error {
	return s.repo.Delete(ctx, programID)
}

// IsInvalidProgram reports whether err means the program content was rejected.
func IsInvalidProgram(err error) bool {
	return errors.Is(err, ErrInvalidProgram) || errors.Is(err, errEmptyName)
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
