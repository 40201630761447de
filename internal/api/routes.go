package api

import (
	"strconv"
	"time"

	"github.com/bobby-s-dev/wsenergy/internal/observability"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

func SetupRoutes(app *fiber.App, handler *Handler, log *zap.Logger) {
	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,HEAD,OPTIONS",
	}))

	// Custom logger middleware
	app.Use(logger.New(logger.Config{
		Format:     "${time} ${pid} ${locals:requestid} ${status} - ${method} ${path}\n",
		TimeFormat: time.RFC3339,
	}))

	app.Use(metricsMiddleware)

	app.Get("/", handler.Welcome)
	app.Get("/getall", handler.GetAll)
	app.Get("/average_temperature", handler.GetAverageTemperature)
	app.Get("/consumption", handler.GetConsumption)
	app.Get("/production", handler.GetProduction)

	app.Get("/health", handler.GetHealth)
	app.Get("/metrics", adaptor.HTTPHandler(observability.Handler()))

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
			"path":  c.Path(),
		})
	})

	log.Debug("Routes registered", zap.Int("handlers", int(app.HandlersCount())))
}

// ErrorHandler renders errors that escape a handler in the same shape as handler errors.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := statusFor(err)

	zap.L().Error("HTTP error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", code),
		zap.Error(err))

	return c.Status(code).JSON(fiber.Map{
		"error":   err.Error(),
		"success": false,
	})
}

func metricsMiddleware(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = statusFor(err)
	}
	// Unknown paths share one label to bound cardinality
	route := c.Route().Path
	if status == fiber.StatusNotFound {
		route = "unmatched"
	}

	observability.HTTPRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
	observability.HTTPRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())

	return err
}
