package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/zlog"

	"studioBooker/cmd/buildCFG"
	"studioBooker/internal/api/api"
	notifyReader "studioBooker/internal/consumerWorker"
	"studioBooker/internal/mailer"
	"studioBooker/internal/metrics"
	"studioBooker/internal/rabbit"
	"studioBooker/internal/repo"
	"studioBooker/internal/service"
	"studioBooker/internal/slots"
)

func main() {
	configPath := flag.String("config", "config.yaml", "optional yaml config file")
	flag.Parse()

	zlog.Init()
	log := zlog.Logger

	cfg, err := buildCFG.Load(*configPath, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	db, closeDB, err := openDB(cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer closeDB()

	repository, err := repo.NewRepository(db, repo.Dialect(cfg.DB.Driver), &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize repository")
	}
	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := repository.MigrateUp(migrateCtx); err != nil {
		cancelMigrate()
		log.Fatal().Err(err).Msg("migration failed")
	}
	cancelMigrate()
	log.Info().Str("driver", cfg.DB.Driver).Msg("database ready")

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	notifier, reader, rmq := buildNotifier(cfg, &log)
	if rmq != nil {
		defer rmq.Close()
	}
	if reader != nil {
		reader.Start(workerCtx)
	}

	gateway := mailer.NewGateway(notifier, cfg.Mail.Timeout, &log)
	if reader == nil {
		gateway.OnResult(metrics.ObserveNotification)
	}

	grid := slots.Grid(cfg.Studio.OpenHour, cfg.Studio.CloseHour)
	booker := service.NewBooker(repository, gateway, grid, &log)
	serviceInstance := service.NewService(booker, cfg.Server.PublicBaseURL, &log)

	app := api.NewRouters(&api.Routers{
		Service:        serviceInstance,
		Log:            &log,
		CORSOrigins:    cfg.Server.CORSOrigins,
		BookRatePerMin: cfg.Server.BookRatePerMin,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Err(err).Msg("server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down server")
	}

	if reader != nil {
		reader.Stop()
	}
	cancelWorkers()

	log.Info().Msg("Shutdown complete")
}

func openDB(cfg buildCFG.DBConfig) (*sql.DB, func(), error) {
	switch repo.Dialect(cfg.Driver) {
	case repo.DialectPostgres:
		pg, err := repo.OpenPostgres(cfg.DSN, cfg.Pool)
		if err != nil {
			return nil, nil, err
		}
		return pg.Master, func() { _ = pg.Master.Close() }, nil
	default:
		db, err := repo.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	}
}

// buildNotifier picks the notification path. Without a mail transport or an
// admin address notifications are dropped; with AMQP_URL they go through the
// queue and a local reader delivers them.
func buildNotifier(cfg *buildCFG.Config, log *zerolog.Logger) (mailer.Notifier, *notifyReader.Reader, *rabbit.Client) {
	if cfg.Mail.AdminEmail == "" {
		log.Warn().Msg("ADMIN_EMAIL is empty, booking notifications are disabled")
		return mailer.NopNotifier{}, nil, nil
	}
	sender, err := mailer.NewSender(cfg.Mail.Transport)
	if err != nil {
		if errors.Is(err, mailer.ErrNoTransport) {
			log.Warn().Msg("no mail transport configured, booking notifications are disabled")
		} else {
			log.Warn().Err(err).Msg("invalid mail transport, booking notifications are disabled")
		}
		return mailer.NopNotifier{}, nil, nil
	}
	log.Info().Str("smtp", sender.Addr()).Msg("mail transport configured")

	if cfg.Rabbit.Url == "" {
		return &mailer.MailNotifier{To: cfg.Mail.AdminEmail, Sender: sender}, nil, nil
	}

	rmq, err := rabbit.NewRabbit(cfg.Rabbit.Url, cfg.Rabbit.Exchange, cfg.Rabbit.Queue, log)
	if err != nil {
		log.Warn().Err(err).Msg("RabbitMQ unavailable, delivering notifications inline")
		return &mailer.MailNotifier{To: cfg.Mail.AdminEmail, Sender: sender}, nil, nil
	}
	reader := notifyReader.NewReader(rmq, sender, cfg.Mail.Timeout, log)
	reader.OnResult(metrics.ObserveNotification)
	return &mailer.QueueNotifier{To: cfg.Mail.AdminEmail, Publisher: rmq}, reader, rmq
}
