package commands

import (
	"context"
	"log/slog"
	"strings"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	domainerrors "key2key/contexts/marketplace/listing-settlement/domain/errors"
)

type AcknowledgeAssignmentCommand struct {
	AssignmentID string
	BrokerID     string
}

type AcknowledgeAssignmentUseCase struct {
	Coordinator application.Coordinator
	Logger      *slog.Logger
}

func (u AcknowledgeAssignmentUseCase) Execute(ctx context.Context, cmd AcknowledgeAssignmentCommand) (entities.LeadAssignment, error) {
	if strings.TrimSpace(cmd.AssignmentID) == "" || strings.TrimSpace(cmd.BrokerID) == "" {
		return entities.LeadAssignment{}, domainerrors.ErrValidation
	}
	assignment, err := u.Coordinator.Acknowledge(ctx, cmd.AssignmentID, cmd.BrokerID)
	if err != nil {
		return entities.LeadAssignment{}, err
	}
	application.ResolveLogger(u.Logger).Info("assignment acknowledged",
		"event", "settlement_assignment_acknowledged",
		"module", "marketplace/listing-settlement",
		"layer", "application",
		"assignment_id", assignment.AssignmentID,
		"broker_id", assignment.BrokerID,
	)
	return assignment, nil
}
