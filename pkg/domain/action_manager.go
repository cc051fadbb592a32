package domain

import (
	"context"
	"fmt"
)

type ActionFunc func(ctx context.Context, params IntegrationInput) (IntegrationOutput, error)

// IntegrationActionManager dispatches action ids to their implementation.
type IntegrationActionManager struct {
	integrationType IntegrationType
	actionFuncs     map[IntegrationActionType]ActionFunc
}

func NewIntegrationActionManager(integrationType IntegrationType) *IntegrationActionManager {
	return &IntegrationActionManager{
		integrationType: integrationType,
		actionFuncs:     make(map[IntegrationActionType]ActionFunc),
	}
}

func (m *IntegrationActionManager) Add(actionType IntegrationActionType, actionFunc ActionFunc) *IntegrationActionManager {
	m.actionFuncs[actionType] = actionFunc

	return m
}

func (m *IntegrationActionManager) Run(ctx context.Context, params IntegrationInput) (IntegrationOutput, error) {
	actionFunc, ok := m.actionFuncs[params.ActionID]
	if !ok {
		return IntegrationOutput{}, fmt.Errorf("%w: %s.%s", ErrActionNotFound, m.integrationType, params.ActionID)
	}

	return actionFunc(ctx, params)
}
