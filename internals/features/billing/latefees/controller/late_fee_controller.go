// file: internals/features/billing/latefees/controller/late_fee_controller.go
package controller

import (
	"github.com/gofiber/fiber/v2"

	"condoku_backend/internals/features/billing/latefees/service"
	helper "condoku_backend/internals/helpers"
)

type LateFeeController struct {
	Scanner *service.Scanner
}

func NewLateFeeController(s *service.Scanner) *LateFeeController {
	return &LateFeeController{Scanner: s}
}

// -----------------------------------------
// Scan (POST /late-fees/scan)
// Runs one sweep now. 409 while another sweep is running.
// -----------------------------------------
func (ctl *LateFeeController) Scan(c *fiber.Ctx) error {
	res, err := ctl.Scanner.Run(c.UserContext(), service.TriggerManual)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "late fee scan finished", res)
}
