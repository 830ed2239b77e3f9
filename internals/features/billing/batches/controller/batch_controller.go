package controller

import (
	"github.com/gofiber/fiber/v2"

	"condoku_backend/internals/features/billing/batches/dto"
	"condoku_backend/internals/features/billing/batches/service"
	helper "condoku_backend/internals/helpers"
)

type BatchHandler struct {
	Builder *service.Builder
}

// -----------------------------------------
// Preview (POST /batches/preview): nothing is written
// -----------------------------------------
func (h *BatchHandler) Preview(c *fiber.Ctx) error {
	var req dto.BatchRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid json")
	}
	res, err := h.Builder.Preview(c.UserContext(), req)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "batch preview", res)
}

// -----------------------------------------
// Commit (POST /batches/commit): safe to retry, billed units are skipped
// -----------------------------------------
func (h *BatchHandler) Commit(c *fiber.Ctx) error {
	var req dto.BatchRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid json")
	}
	res, err := h.Builder.Commit(c.UserContext(), req)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	if res.Created > 0 {
		return helper.JsonCreated(c, "batch committed", res)
	}
	return helper.JsonOK(c, "batch committed", res)
}
