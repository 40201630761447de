package api

import (
	"context"
	"time"

	"github.com/bobby-s-dev/wsenergy/internal/models"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const welcomeMessage = "Welcome to WSEnergy API"

// EnergyService is the data the handlers serve. *services.Gateway implements it.
type EnergyService interface {
	Temperature(ctx context.Context) (*models.AggregatedTemperature, error)
	Consumption(ctx context.Context) (*models.AggregatedConsumption, error)
	Production(ctx context.Context) (*models.AggregatedProduction, error)
	Summary(ctx context.Context) (*models.Summary, error)
	LastRefresh() time.Time
	GetStats() map[string]interface{}
}

// StatusReporter exposes the refresh scheduler state on /health.
type StatusReporter interface {
	GetStatus() map[string]interface{}
}

type Handler struct {
	service        EnergyService
	scheduler      StatusReporter
	logger         *zap.Logger
	requestTimeout time.Duration
	startTime      time.Time
}

func NewHandler(service EnergyService, scheduler StatusReporter, requestTimeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		service:        service,
		scheduler:      scheduler,
		logger:         logger,
		requestTimeout: requestTimeout,
		startTime:      time.Now(),
	}
}

// Welcome handles GET /
func (h *Handler) Welcome(c *fiber.Ctx) error {
	return c.SendString(welcomeMessage)
}

// GetAll handles GET /getall
func (h *Handler) GetAll(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	summary, err := h.service.Summary(ctx)
	if err != nil {
		return h.respondError(c, "summary", err)
	}

	h.logger.Debug("Served summary", zap.Any("summary", summary))
	return c.JSON(summary)
}

// GetAverageTemperature handles GET /average_temperature
func (h *Handler) GetAverageTemperature(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	temperature, err := h.service.Temperature(ctx)
	if err != nil {
		return h.respondError(c, "average_temperature", err)
	}

	h.logger.Debug("Served average temperature",
		zap.String("average_temperature", temperature.AverageTemperature))
	return c.JSON(temperature)
}

// GetConsumption handles GET /consumption
func (h *Handler) GetConsumption(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	consumption, err := h.service.Consumption(ctx)
	if err != nil {
		return h.respondError(c, "consumption", err)
	}

	h.logger.Debug("Served consumption",
		zap.Float64("actual_consumption", consumption.ActualConsumption))
	return c.JSON(consumption)
}

// GetProduction handles GET /production
func (h *Handler) GetProduction(c *fiber.Ctx) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	production, err := h.service.Production(ctx)
	if err != nil {
		return h.respondError(c, "production", err)
	}

	h.logger.Debug("Served production",
		zap.Float64("total_production", production.TotalProduction),
		zap.Int("types", len(production.ProductionPerType)))
	return c.JSON(production)
}

// GetHealth handles GET /health
func (h *Handler) GetHealth(c *fiber.Ctx) error {
	response := fiber.Map{
		"status":       "healthy",
		"timestamp":    time.Now(),
		"last_refresh": h.service.LastRefresh(),
		"uptime":       time.Since(h.startTime).String(),
		"stats":        h.service.GetStats(),
	}
	if h.scheduler != nil {
		response["scheduler"] = h.scheduler.GetStatus()
	}
	return c.JSON(response)
}

func (h *Handler) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.requestTimeout)
}

func (h *Handler) respondError(c *fiber.Ctx, operation string, err error) error {
	status := statusFor(err)

	h.logger.Error("Failed to serve request",
		zap.String("operation", operation),
		zap.String("request_id", requestID(c)),
		zap.Int("status", status),
		zap.Error(err))

	return c.Status(status).JSON(fiber.Map{
		"error":   err.Error(),
		"success": false,
	})
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return ""
}
