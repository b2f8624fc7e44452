package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"kiln_control/internal/models"
)

type fakeProgramRepo struct {
	created []models.Program
	list    []models.ProgramInfo
	deleted []int
	err     error
}

func (f *fakeProgramRepo) List(ctx context.Context) ([]models.ProgramInfo, error) {
	return f.list, f.err
}

func (f *fakeProgramRepo) Get(ctx context.Context, programID int) (models.Program, error) {
	return models.Program{}, f.err
}

func (f *fakeProgramRepo) Steps(ctx context.Context, programID, fromStep int) ([]models.Instruction, error) {
	return nil, f.err
}

func (f *fakeProgramRepo) Create(ctx context.Context, p models.Program) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.created = append(f.created, p)
	return len(f.created), nil
}

func (f *fakeProgramRepo) Delete(ctx context.Context, programID int) error {
	f.deleted = append(f.deleted, programID)
	return f.err
}

func TestProgramService_ImportNormalizesInstructions(t *testing.T) {
	repo := &fakeProgramRepo{}
	s := NewProgramService(repo)

	id, err := s.Import(context.Background(), models.Program{
		ProgramInfo: models.ProgramInfo{Name: "  cone 6 glaze "},
		Steps: []models.Instruction{
			{Kind: "AFAP", Temperature: 1000},
			{Kind: "Ramp", Temperature: 2232, Param: 150},
			{Kind: "hold", Temperature: 2232, Param: 600},
		},
	})
	if err != nil {
		t.Fatalf("Import error: %v", err)
	}
	if id != 1 || len(repo.created) != 1 {
		t.Fatalf("expected one stored program, got id=%d %v", id, repo.created)
	}
	got := repo.created[0]
	if got.Name != "cone 6 glaze" {
		t.Fatalf("name = %q", got.Name)
	}
	var kinds []string
	for _, s := range got.Steps {
		kinds = append(kinds, s.Kind)
	}
	if diff := cmp.Diff([]string{"afap", "ramp", "hold"}, kinds); diff != "" {
		t.Fatalf("instructions mismatch (-want +got):\n%s", diff)
	}
}

func TestProgramService_ImportRejectsInvalid(t *testing.T) {
	repo := &fakeProgramRepo{}
	s := NewProgramService(repo)

	cases := []models.Program{
		{ProgramInfo: models.ProgramInfo{Name: ""}, Steps: []models.Instruction{{Kind: "afap"}}},
		{ProgramInfo: models.ProgramInfo{Name: "x"}},
		{ProgramInfo: models.ProgramInfo{Name: "x"}, Steps: []models.Instruction{{Kind: "cool"}}},
	}
	for i, p := range cases {
		if _, err := s.Import(context.Background(), p); !IsInvalidProgram(err) {
			t.Fatalf("case %d: expected invalid program, got %v", i, err)
		}
	}
	if len(repo.created) != 0 {
		t.Fatalf("invalid programs were stored: %v", repo.created)
	}
}

func TestProgramService_ImportRepoError(t *testing.T) {
	s := NewProgramService(&fakeProgramRepo{err: errors.New("locked")})
	_, err := s.Import(context.Background(), models.Program{
		ProgramInfo: models.ProgramInfo{Name: "x"},
		Steps:       []models.Instruction{{Kind: "afap", Temperature: 100}},
	})
	if err == nil || IsInvalidProgram(err) {
		t.Fatalf("expected storage error, got %v", err)
	}
}
