package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/weather-history-etl/internal/api/http"
	"github.com/i474232898/weather-history-etl/internal/common"
	"github.com/i474232898/weather-history-etl/internal/config"
	"github.com/i474232898/weather-history-etl/internal/export"
	"github.com/i474232898/weather-history-etl/internal/scheduler"
	"github.com/i474232898/weather-history-etl/internal/weather"
)

const serviceName = "weather-etl"

var (
	rootCmd = &cobra.Command{
		Use:           serviceName,
		Short:         "Ingest historical daily weather for a city into a local store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily ingestion schedule",
		RunE:  runServe,
	}

	ingestCmd = &cobra.Command{
		Use:   "ingest",
		Short: "Run one ingestion for the configured city and exit",
		RunE:  runIngest,
	}

	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Write weather_daily to CSV",
		RunE:  runExport,
	}

	ingestFlags struct {
		anchorYear int
		spanYears  int
		direction  string
	}

	exportFlags struct {
		output    string
		overwrite bool
	}
)

func init() {
	ingestCmd.Flags().IntVar(&ingestFlags.anchorYear, "anchor-year", 0, "first year of the interval (default from config)")
	ingestCmd.Flags().IntVar(&ingestFlags.spanYears, "span", 0, "number of years to ingest (default from config)")
	ingestCmd.Flags().StringVar(&ingestFlags.direction, "direction", "", "forward or backward (default from config)")

	exportCmd.Flags().StringVarP(&exportFlags.output, "output", "o", "", "CSV path (default EXPORT_CSV_PATH)")
	exportCmd.Flags().BoolVar(&exportFlags.overwrite, "overwrite", false, "replace an existing export")

	rootCmd.AddCommand(serveCmd, ingestCmd, exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%s: %v", serviceName, err)
	}
}

// setup loads configuration and wires the pipeline shared by all commands.
func setup(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newApplication(ctx, cfg, newLogger(cfg.LogLevel))
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	req := app.cfg.RunRequest()
	if cmd.Flags().Changed("anchor-year") {
		req.AnchorYear = ingestFlags.anchorYear
	}
	if cmd.Flags().Changed("span") {
		req.SpanYears = ingestFlags.spanYears
	}
	if cmd.Flags().Changed("direction") {
		dir, err := weather.ParseDirection(ingestFlags.direction)
		if err != nil {
			return err
		}
		req.Direction = dir
	}

	res, err := app.service.Run(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s..%s fetched=%d inserted=%d\n",
		res.RunID, res.From, res.To, res.Fetched, res.Inserted)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	app, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	path := common.FirstNonEmpty(exportFlags.output, app.cfg.ExportCSVPath)
	res, err := export.WriteCSV(cmd.Context(), app.store, path, exportFlags.overwrite)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	if !res.Written {
		fmt.Fprintf(cmd.OutOrStdout(), "export skipped: %s (%s)\n", res.Skipped, res.Path)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows to %s\n", res.Rows, res.Path)
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer app.Close()

	// Scheduler that runs the configured ingestion once a day.
	sched := scheduler.New(app.service, app.cfg.RunRequest(), app.cfg.ScheduleAt, app.logger)
	if err := sched.Start(app.cfg.RunOnStart); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	server := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// Manual ingestion can take a while on large spans.
		WriteTimeout: 5 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	server.Use(logger.New())
	server.Use(recover.New())

	httpapi.RegisterOps(server, serviceName, app.registry)
	httpapi.RegisterRoutes(server, app.service, app.cfg.RunRequest())

	go func() {
		if err := server.Listen(":" + app.cfg.Port); err != nil {
			app.logger.Error("fiber server stopped", "error", err)
		}
	}()
	app.logger.Info("http server listening", "port", app.cfg.Port)

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		app.logger.Error("error during shutdown", "error", err)
	}
	return nil
}
