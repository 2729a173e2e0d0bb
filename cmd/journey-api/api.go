package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/metrics"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/queue"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/stepconfig"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/web"
)

type API struct {
	logger        *slog.Logger
	persistence   persistence.Persistence
	queue         queue.Queue
	processor     web.ParticipantProcessor
	metrics       *metrics.Metrics
	validate      *validator.Validate
	stepValidator *stepconfig.Validator
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	q queue.Queue,
	processor web.ParticipantProcessor,
	m *metrics.Metrics,
) (*API, error) {
	stepValidator, err := stepconfig.NewValidator()
	if err != nil {
		return nil, err
	}

	return &API{
		logger:        logger,
		persistence:   persistence,
		queue:         q,
		processor:     processor,
		metrics:       m,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		stepValidator: stepValidator,
	}, nil
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.persistence, a.queue, a.processor, a.validate, a.stepValidator)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))
	app.Use(web.RequestMetrics(a.metrics))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/metrics", adaptor.HTTPHandler(a.metrics.Handler()))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Journey API")
	})

	web.RegisterRoutes(app, handlers)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	a.logger.Info("Journey API listening", "port", port)

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
