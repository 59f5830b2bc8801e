// Package main provides the Arion API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/arionlabs/arion/pkg/engine"
	"github.com/arionlabs/arion/pkg/eventbus"
	"github.com/arionlabs/arion/pkg/persistence"
	"github.com/arionlabs/arion/pkg/services"
	"github.com/arionlabs/arion/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	engine      *engine.Engine
	permissions services.PermissionChecker
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	eng *engine.Engine,
	permissions services.PermissionChecker,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		engine:      eng,
		permissions: permissions,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	executionService := services.NewExecution(a.engine, a.persistence, a.permissions, a.logger)
	definitionService := services.NewDefinition(a.persistence, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(executionService, definitionService, a.validate)

	return web.NewApp(handlers)
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
