package archive

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/ShivangSharma3/bus-tracking-system/internal/model"
	"github.com/ShivangSharma3/bus-tracking-system/internal/reader"
	"github.com/ShivangSharma3/bus-tracking-system/internal/stream"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, rdr *reader.Reader, hub *stream.Hub, authMiddleware fiber.Handler) {
	r.Post("/update-location/:busId", authMiddleware, func(c *fiber.Ctx) error {
		var fix model.Fix
		if err := c.BodyParser(&fix); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		fix.BusID = c.Params("busId")

		// The token binds the agent to one bus; it cannot report for others.
		if tokenBus, _ := c.Locals("bus_id").(string); tokenBus != "" && tokenBus != fix.BusID {
			return fiber.NewError(fiber.StatusForbidden, "token not valid for this bus")
		}

		if err := svc.InsertFix(c.Context(), fix); err != nil {
			if errors.Is(err, model.ErrInvalidSource) || errors.Is(err, model.ErrInvalidFix) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		if hub != nil {
			if payload, err := json.Marshal(fix); err == nil {
				hub.Broadcast(fix.BusID, payload)
			}
		}
		return c.JSON(fiber.Map{"success": true})
	})

	r.Get("/:busId", func(c *fiber.Ctx) error {
		state, err := rdr.Read(c.Context(), c.Params("busId"))
		if err != nil {
			if errors.Is(err, reader.ErrNoData) {
				return fiber.NewError(fiber.StatusNotFound, "no location data yet")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(state)
	})

	r.Get("/:busId/history", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		fixes, err := svc.History(c.Context(), c.Params("busId"), limit)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fixes)
	})
}
