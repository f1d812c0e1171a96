package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/mysticalseeker24/SuperPage-sub000/config"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/ledger"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/proof"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/publisher"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/query"
	rediskeys "github.com/mysticalseeker24/SuperPage-sub000/pkgs/redis"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/submitter"
	"github.com/mysticalseeker24/SuperPage-sub000/pkgs/tracker"
)

func main() {
	// Load .env if present; real deployments set the environment directly
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using process environment")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	settings := config.SettingsObj

	// Connect to the ledger network
	client, err := ethclient.Dial(settings.NetworkURL)
	if err != nil {
		log.Fatalf("Failed to connect to ledger network: %v", err)
	}
	defer client.Close()

	ledgerClient, err := ledger.NewClient(client, settings.LedgerContract)
	if err != nil {
		log.Fatalf("Failed to create ledger client: %v", err)
	}

	sub, err := submitter.New(client, ledgerClient, settings.PrivateKey, submitter.Config{
		ChainID:             settings.ChainID,
		GasBufferPercent:    settings.GasBufferPercent,
		MaxBroadcastRetries: settings.MaxBroadcastRetries,
		BroadcastRetryDelay: settings.BroadcastRetryDelay,
		BalanceCheckEnabled: settings.BalanceCheckEnabled,
	})
	if err != nil {
		log.Fatalf("Failed to create transaction submitter: %v", err)
	}
	log.Infof("Signing account: %s", sub.From().Hex())

	trk := tracker.New(client, tracker.Config{
		ConfirmationDepth:   settings.ConfirmationDepth,
		ConfirmationTimeout: settings.ConfirmationTimeout,
		PollInterval:        settings.PollInterval,
		MaxPollInterval:     settings.MaxPollInterval,
	})

	// Transaction handles live in Redis when available, memory otherwise.
	// Either way they are safe to lose: the ledger remains queryable by id.
	var store publisher.HandleStore
	if settings.RedisHost != "" {
		redisClient, err := rediskeys.NewClient(settings.RedisHost, settings.RedisPort, settings.RedisPassword, settings.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		keyBuilder := rediskeys.NewKeyBuilder(settings.ContractAddr)
		store = publisher.NewRedisHandleStore(redisClient, keyBuilder, settings.HandleTTL)
	} else {
		store = publisher.NewMemoryHandleStore(1000)
	}

	pub := publisher.New(proof.NewBuilder(), sub, trk, ledgerClient, store, publisher.Config{
		ConfirmationTimeout: settings.ConfirmationTimeout,
		MetricsEnabled:      settings.MetricsEnabled,
	})

	api := &PublisherAPI{
		publisher: pub,
		querySvc:  query.NewService(ledgerClient),
		healthCheck: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), settings.ContractQueryTimeout)
			defer cancel()
			_, err := client.BlockNumber(ctx)
			return err
		},
		contract:   settings.ContractAddr,
		networkURL: settings.NetworkURL,
	}

	// Setup routes
	if !settings.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.POST("/publish", api.Publish)
	router.GET("/transaction/:hash", api.TransactionStatus)
	router.GET("/prediction/:projectId", api.Prediction)
	router.GET("/prediction/:projectId/verify", api.VerifyPrediction)
	router.GET("/health", api.Health)

	if settings.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	addr := fmt.Sprintf("%s:%d", settings.APIHost, settings.APIPort)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Infof("🚀 SuperPage publisher listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("Received signal %v, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown error: %v", err)
	}

	// Let in-flight confirmation monitors record their terminal status
	done := make(chan struct{})
	go func() {
		pub.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info("All in-flight submissions reached terminal status")
	case <-time.After(settings.ConfirmationTimeout):
		log.Warn("Shutdown timeout with submissions still pending - handles recoverable from the ledger by id")
	}
}
