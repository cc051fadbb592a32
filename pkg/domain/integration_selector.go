package domain

import (
	"context"
	"fmt"
	"sync"
)

type SelectIntegrationParams struct {
	IntegrationType IntegrationType
}

type IntegrationSelector interface {
	RegisterCreator(integrationType IntegrationType, creator IntegrationCreator)
	SelectCreator(ctx context.Context, params SelectIntegrationParams) (IntegrationCreator, error)
	RegisterPoller(integrationType IntegrationType, poller IntegrationPoller)
	SelectPoller(ctx context.Context, params SelectIntegrationParams) (IntegrationPoller, error)
	RegisterWebhookFilter(integrationType IntegrationType, filter WebhookEventFilter)
	SelectWebhookFilter(ctx context.Context, params SelectIntegrationParams) (WebhookEventFilter, error)
}

type integrationSelector struct {
	mutex sync.RWMutex

	creatorsByType       map[IntegrationType]IntegrationCreator
	pollersByType        map[IntegrationType]IntegrationPoller
	webhookFiltersByType map[IntegrationType]WebhookEventFilter
}

func NewIntegrationSelector() IntegrationSelector {
	return &integrationSelector{
		creatorsByType:       make(map[IntegrationType]IntegrationCreator),
		pollersByType:        make(map[IntegrationType]IntegrationPoller),
		webhookFiltersByType: make(map[IntegrationType]WebhookEventFilter),
	}
}

func (s *integrationSelector) RegisterCreator(integrationType IntegrationType, creator IntegrationCreator) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.creatorsByType[integrationType] = creator
}

func (s *integrationSelector) SelectCreator(ctx context.Context, params SelectIntegrationParams) (IntegrationCreator, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	creator, ok := s.creatorsByType[params.IntegrationType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIntegrationNotFound, params.IntegrationType)
	}

	return creator, nil
}

func (s *integrationSelector) RegisterPoller(integrationType IntegrationType, poller IntegrationPoller) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.pollersByType[integrationType] = poller
}

func (s *integrationSelector) SelectPoller(ctx context.Context, params SelectIntegrationParams) (IntegrationPoller, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	poller, ok := s.pollersByType[params.IntegrationType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIntegrationNotFound, params.IntegrationType)
	}

	return poller, nil
}

func (s *integrationSelector) RegisterWebhookFilter(integrationType IntegrationType, filter WebhookEventFilter) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.webhookFiltersByType[integrationType] = filter
}

func (s *integrationSelector) SelectWebhookFilter(ctx context.Context, params SelectIntegrationParams) (WebhookEventFilter, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	filter, ok := s.webhookFiltersByType[params.IntegrationType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIntegrationNotFound, params.IntegrationType)
	}

	return filter, nil
}
