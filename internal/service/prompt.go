package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/govai/console/internal/domain"
	"github.com/govai/console/internal/repository"
)

// PromptService assembles the assistant's system prompt from stored modules.
type PromptService interface {
	// BuildSystemPrompt stacks the persona and every active module the plan
	// unlocks, lowest tier first. It fails with ECONFIG rather than serving
	// a partial prompt.
	BuildSystemPrompt(ctx context.Context, planID domain.PlanID) (string, error)

	// ListModules returns every module, active or not.
	ListModules(ctx context.Context) ([]*domain.PromptModule, error)

	// UpsertModule validates and stores a module.
	UpsertModule(ctx context.Context, m *domain.PromptModule) (*domain.PromptModule, error)
}

type promptService struct {
	queries repository.Querier
	logger  *slog.Logger
}

// NewPromptService creates a new PromptService.
func NewPromptService(queries repository.Querier, logger *slog.Logger) PromptService {
	return &promptService{queries: queries, logger: logger}
}

func (s *promptService) BuildSystemPrompt(ctx context.Context, planID domain.PlanID) (string, error) {
	const op = "prompt.build"

	rows, err := s.queries.ListActivePromptModules(ctx, int32(planID.Level()))
	if err != nil {
		s.logger.Error("prompt modules unavailable", "plan_id", planID, "error", err)
		return "", domain.Configuration(err, op, "failed to load prompt modules")
	}

	var persona string
	layers := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.Slug == domain.PersonaModule {
			persona = row.Content
			continue
		}
		layers = append(layers, strings.TrimSpace(row.Content))
	}
	if persona == "" || len(layers) == 0 {
		s.logger.Error("prompt modules missing", "plan_id", planID, "persona", persona != "", "modules", len(layers))
		return "", domain.Configuration(nil, op, fmt.Sprintf("no prompt modules configured for plan %q", planID))
	}

	return strings.TrimSpace(persona) + "\n\n" + strings.Join(layers, "\n\n"), nil
}

func (s *promptService) ListModules(ctx context.Context) ([]*domain.PromptModule, error) {
	const op = "prompt.list"

	rows, err := s.queries.ListPromptModules(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list prompt modules")
	}
	out := make([]*domain.PromptModule, 0, len(rows))
	for _, row := range rows {
		out = append(out, toPromptModule(row))
	}
	return out, nil
}

func (s *promptService) UpsertModule(ctx context.Context, m *domain.PromptModule) (*domain.PromptModule, error) {
	const op = "prompt.upsert"

	if err := m.Validate(); err != nil {
		return nil, err
	}
	row, err := s.queries.UpsertPromptModule(ctx, repository.UpsertPromptModuleParams{
		Slug:              m.Slug,
		Content:           m.Content,
		RequiredPlanLevel: int32(m.RequiredPlanLevel),
		IsActive:          m.Active,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to save prompt module")
	}
	s.logger.Info("prompt module saved", "slug", m.Slug, "required_plan_level", m.RequiredPlanLevel, "active", m.Active)
	return toPromptModule(row), nil
}
