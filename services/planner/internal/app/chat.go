package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"hotelplan/internal/util"
	"hotelplan/pkg/conversation"
	"hotelplan/pkg/design"
	"hotelplan/pkg/domain"
	"hotelplan/pkg/store"
)

// ChatResult is either the next question or the created project.
type ChatResult struct {
	Question  *conversation.Question `json:"question,omitempty"`
	Model     *domain.HotelBaseModel `json:"model,omitempty"`
	ProjectID string                 `json:"projectId,omitempty"`
	Message   string                 `json:"message,omitempty"`
}

// Chat advances the conversation. When the last slot is filled the model is
// validated and a draft project is created for ownerID, seeded with floors and
// public areas from the model. A *conversation.SchemaViolation is returned
// unchanged. Resubmitting a finished conversation creates another project.
// A nil history is rejected; an empty one starts the conversation.
func (a *App) Chat(ctx context.Context, ownerID string, messages []domain.ChatMessage) (ChatResult, error) {
	if strings.TrimSpace(ownerID) == "" {
		return ChatResult{}, ErrOwnerRequired
	}
	if messages == nil {
		return ChatResult{}, ErrMessagesRequired
	}
	outcome, err := a.engine.Run(messages)
	if err != nil {
		return ChatResult{}, err
	}
	if !outcome.Complete() {
		return ChatResult{Question: outcome.Question}, nil
	}

	model := *outcome.Model
	projectID, err := a.createProject(ctx, ownerID, model)
	if err != nil {
		return ChatResult{}, err
	}
	return ChatResult{Model: &model, ProjectID: projectID, Message: conversation.CompletionMessage}, nil
}

func (a *App) createProject(ctx context.Context, ownerID string, model domain.HotelBaseModel) (string, error) {
	logger := util.LoggerFromContext(ctx)
	projectID := uuid.NewString()
	now := a.now()

	archiveKey := ""
	if a.archive != nil {
		key, err := a.archive.Save(ctx, projectID, model)
		if err != nil {
			// The database copy is authoritative; the archive is a convenience.
			logger.Warn("archive base model failed", "project_id", projectID, "err", err)
		} else {
			archiveKey = key
		}
	}

	seeded := design.FromBaseModel(projectID, model)
	err := a.store.CreateProject(store.ProjectSeed{
		Project: domain.Project{
			ID:            projectID,
			OwnerID:       ownerID,
			Name:          conversation.ProjectName(model),
			Status:        domain.StatusDraft,
			NonCompliance: []domain.ComplianceIssue{},
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		Model:       model,
		ArchiveKey:  archiveKey,
		Floors:      seeded.Floors,
		PublicAreas: seeded.PublicAreas,
	})
	if err != nil {
		return "", fmt.Errorf("create project: %w", err)
	}
	logger.Info("project created", "project_id", projectID, "floors", len(seeded.Floors), "public_areas", len(seeded.PublicAreas))
	return projectID, nil
}
