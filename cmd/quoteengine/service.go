package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	appservice "quoteengine/pkg/quote/application/service"
	"quoteengine/pkg/quote/domain/model"
	"quoteengine/pkg/quote/domain/service"
	"quoteengine/pkg/quote/infrastructure/cache"
	"quoteengine/pkg/quote/infrastructure/event"
	"quoteengine/pkg/quote/infrastructure/mysql"
	"quoteengine/pkg/quote/infrastructure/notification"
	"quoteengine/pkg/quote/infrastructure/transport/rest"
	"quoteengine/pkg/quote/infrastructure/transport/rpc"
)

const shutdownTimeout = 10 * time.Second

func serviceCommand() *cli.Command {
	return &cli.Command{
		Name:  "service",
		Usage: "run the REST and gRPC APIs",
		Action: func(c *cli.Context) error {
			cnf, err := loadConfig()
			if err != nil {
				return err
			}
			if err := setupLogging(cnf.LogLevel); err != nil {
				return err
			}
			return runService(c.Context, cnf)
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply database migrations and exit",
		Action: func(c *cli.Context) error {
			cnf, err := loadConfig()
			if err != nil {
				return err
			}
			if err := setupLogging(cnf.LogLevel); err != nil {
				return err
			}
			db, err := mysql.Connect(c.Context, cnf.database())
			if err != nil {
				return err
			}
			defer db.Close()
			return mysql.Migrate(db)
		},
	}
}

func runService(ctx context.Context, cnf *config) error {
	db, err := mysql.Connect(ctx, cnf.database())
	if err != nil {
		return err
	}
	defer db.Close()

	if cnf.AutoMigrate {
		if err := mysql.Migrate(db); err != nil {
			return err
		}
	}

	container := newContainer(db, cnf)

	restServer := &http.Server{
		Addr:    cnf.RESTAddress,
		Handler: rest.Router(container.quotes, container.pricing, container.weights, container.recommendations),
	}
	grpcServer := grpc.NewServer()
	rpc.Register(grpcServer, rpc.NewServer(container.quotes, container.pricing, container.weights, container.recommendations))

	grpcListener, err := net.Listen("tcp", cnf.GRPCAddress)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cnf.GRPCAddress)
	}

	killSignalChan := getKillSignalChan()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("url", cnf.RESTAddress).Info("Starting REST server")
		if err := restServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "rest server")
		}
		return nil
	})
	g.Go(func() error {
		log.WithField("url", cnf.GRPCAddress).Info("Starting gRPC server")
		return errors.Wrap(grpcServer.Serve(grpcListener), "grpc server")
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case killSignal := <-killSignalChan:
			logKillSignal(killSignal)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		grpcServer.GracefulStop()
		return restServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type container struct {
	quotes          service.QuoteService
	pricing         service.PricingService
	weights         service.WeightsService
	recommendations appservice.RecommendationService
}

func newContainer(db *sqlx.DB, cnf *config) *container {
	dispatcher := event.NewDispatcher(log.StandardLogger())
	notifier := notification.NewCustomerNotifier(notification.LogSender{Logger: log.StandardLogger()})
	dispatcher.Subscribe(model.QuoteTransitioned{}.Type(), notifier.Handle)

	quoteRepo := mysql.NewQuoteRepository(db)
	weightsRepo := mysql.NewWeightsRepository(db)
	catalog := mysql.NewCatalogRepository(db)

	var supplierCatalog model.SupplierCatalog = catalog
	if cnf.RedisAddress != "" {
		supplierCatalog = cache.NewPerformanceCatalog(catalog, cache.NewClient(cnf.redis()), cnf.PerformanceCacheTTL, log.StandardLogger())
	}

	quotes := service.NewQuoteService(quoteRepo, catalog, dispatcher)
	return &container{
		quotes:  quotes,
		pricing: service.NewPricingService(quoteRepo, catalog, dispatcher),
		weights: service.NewWeightsService(weightsRepo, dispatcher),
		recommendations: appservice.NewRecommendationService(
			quotes,
			supplierCatalog,
			weightsRepo,
			service.NewRanker(cnf.bonusPolicy()),
		),
	}
}

func getKillSignalChan() chan os.Signal {
	osKillSignalChan := make(chan os.Signal, 1)
	signal.Notify(osKillSignalChan, os.Interrupt, syscall.SIGTERM)
	return osKillSignalChan
}

func logKillSignal(killSignal os.Signal) {
	switch killSignal {
	case os.Interrupt:
		log.Info("Got SIGINT...")
	case syscall.SIGTERM:
		log.Info("Got SIGTERM...")
	}
}
