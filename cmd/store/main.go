package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"topup_store/internal/app"
	"topup_store/internal/config"
	"topup_store/internal/pkg/logger"
	"topup_store/internal/provider"
	"topup_store/internal/service"
	"topup_store/internal/session"
	"topup_store/internal/storage"

	"go.uber.org/zap"
)

func main() {
	var l *logger.Logger
	var err error
	if l, err = logger.CreateLogger(config.LogLevel); err != nil {
		log.Fatal("Failed to create logger:", err)
	}

	storage, err := storage.NewPostgreSQL(config.DatabaseURI, l.Component("storage"))
	if err != nil {
		log.Fatal(err)
	}
	defer storage.Close()

	const migrateTimeout = 30 * time.Second
	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), migrateTimeout)
	err = storage.Migrate(migrateCtx)
	cancelMigrate()
	if err != nil {
		log.Fatal(err)
	}

	sessions, err := session.NewRedis(config.RedisAddr, config.RedisPassword, config.RedisDB, config.SessionTTL, l)
	if err != nil {
		log.Fatal(err)
	}
	defer sessions.Close()

	profiles, err := provider.LoadProfiles(config.ProviderProfiles)
	if err != nil {
		log.Fatal(err)
	}
	gateway := provider.NewClient(provider.NewSession(config.ProviderAPIURL, config.ProviderAPIToken), profiles, config.ProviderTimeout, l)

	app := app.NewApp(storage, sessions, gateway, profiles, l.Component("app"))
	service := service.NewService(app, config.ServerRunAddress, l)

	const readHeaderTimeout = 5 * time.Second
	server := &http.Server{Addr: service.RunAddress(), Handler: service.NewRouter(), ReadHeaderTimeout: readHeaderTimeout}

	serverCtx, serverStopCtx := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		const shutdownTimeout = 30 * time.Second
		shutdownCtx, cancel := context.WithTimeout(serverCtx, shutdownTimeout)
		defer cancel()

		go func() {
			<-shutdownCtx.Done()
			if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	l.Info("storefront listening", zap.String("address", service.RunAddress()))
	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}

	<-serverCtx.Done()
}
