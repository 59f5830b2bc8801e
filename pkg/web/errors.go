package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/arionlabs/arion/pkg/engine"
	"github.com/arionlabs/arion/pkg/persistence"
	"github.com/arionlabs/arion/pkg/services"
	"github.com/arionlabs/arion/pkg/validation"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func forbidden(c fiber.Ctx) error {
	problem := problems.NewStatusProblem(403).
		WithInstance(c.Path()).
		WithType("forbidden").
		WithDetail("you do not have access to this resource")

	return c.Status(fiber.StatusForbidden).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps service, engine, and persistence errors onto
// RFC 7807 responses.
func handleServiceError(c fiber.Ctx, err error) error {
	var defErr *validation.DefinitionError

	switch {
	case services.IsForbidden(err):
		return forbidden(c)

	case services.IsValidationError(err) || errors.As(err, &defErr):
		return badRequest(c, err.Error())

	case services.IsConflict(err),
		errors.Is(err, engine.ErrNotExecutable),
		errors.Is(err, engine.ErrNotCancellable),
		engine.IsAlreadyDecided(err):
		return conflict(c, err.Error())

	case engine.IsNotResumable(err):
		return conflict(c, "this execution can no longer be resumed")

	case persistence.IsDefinitionNotFound(err):
		return notFound(c, "definition not found")

	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution not found")

	case persistence.IsApprovalNotFound(err):
		return notFound(c, "approval not found")

	case persistence.IsNotFound(err):
		return notFound(c, "resource not found")

	default:
		return internalError(c, err)
	}
}
