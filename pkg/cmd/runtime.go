package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/delivery"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/eventbus"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/journey"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/log"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/metrics"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/otelhelper"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/persistence"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

// CommonFlags are shared by every journey binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (memory://, postgres://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Lifecycle event bus type (gochannel, kafka, none)",
			Value:   "none",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers for the kafka event bus",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.IntFlag{
			Name:    "max-immediate-hops",
			Usage:   "Maximum transitions a single processing call may chain",
			Value:   journey.DefaultMaxImmediateHops,
			Sources: cli.EnvVars("MAX_IMMEDIATE_HOPS"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// QueueFlag is the journey event queue URL flag.
func QueueFlag(required bool) cli.Flag {
	return &cli.StringFlag{
		Name:     "queue-url",
		Usage:    "Journey event queue URL (memory://, postgres://, redis://)",
		Required: required,
		Value:    "memory://",
		Sources:  cli.EnvVars("QUEUE_URL"),
	}
}

// Runtime holds the collaborators a journey binary needs.
type Runtime struct {
	Logger    *slog.Logger
	Store     persistence.Persistence
	EventBus  eventbus.EventBus
	Tracer    trace.Tracer
	Metrics   *metrics.Metrics
	Processor *journey.Processor
}

// NewRuntime configures logging and opens the store, event bus and processor
// described by the CommonFlags of command.
func NewRuntime(ctx context.Context, command *cli.Command, serviceName string) (*Runtime, error) {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule(serviceName)

	tracer, err := otelhelper.Tracer(ctx, serviceName, command.Bool("otel-enabled"))
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}

	store, err := NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, err
	}

	bus, err := NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
	if err != nil {
		return nil, errors.Join(err, store.Close(ctx))
	}

	m := metrics.New()

	processor, err := journey.NewProcessor(store, delivery.NewLogDeliverer(logger), logger,
		journey.WithPublisher(bus),
		journey.WithTracer(tracer),
		journey.WithMetrics(m),
		journey.WithMaxImmediateHops(int(command.Int("max-immediate-hops"))),
	)
	if err != nil {
		return nil, errors.Join(err, bus.Close(), store.Close(ctx))
	}

	return &Runtime{
		Logger:    logger,
		Store:     store,
		EventBus:  bus,
		Tracer:    tracer,
		Metrics:   m,
		Processor: processor,
	}, nil
}

func (r *Runtime) Close(ctx context.Context) {
	err := r.EventBus.Close()
	if err != nil {
		r.Logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
	}

	err = r.Store.Close(ctx)
	if err != nil {
		r.Logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
	}
}

// ServeMetrics exposes /metrics on addr until ctx is done. An empty addr
// disables the listener.
func ServeMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *slog.Logger) {
	if addr == "" {
		return
	}

	app := fiber.New()
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	go func() {
		<-ctx.Done()

		err := app.Shutdown()
		if err != nil {
			logger.Error("Failed to stop metrics listener", "error", err)
		}
	}()

	go func() {
		err := app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
		if err != nil {
			logger.Error("Metrics listener stopped", "error", err)
		}
	}()
}
