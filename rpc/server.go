package rpc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Conflux-Chain/confura-pending-cache/store"
	"github.com/ethereum/go-ethereum/node"
	"github.com/openweb3/go-rpc-provider"
	"github.com/sirupsen/logrus"
)

// Config holds the settings of the RPC server.
type Config struct {
	// Enabled turns the query endpoint on or off.
	Enabled bool `default:"true"`

	// Endpoint is the HTTP listen address.
	Endpoint string `default:":38639"`
}

// MustServe starts the RPC service until the given context is canceled.
func MustServe(ctx context.Context, wg *sync.WaitGroup, conf Config, cache store.Store) {
	defer wg.Done()

	if !conf.Enabled {
		return
	}

	handler := rpc.NewServer()

	if err := handler.RegisterName("pending", NewApi(cache)); err != nil {
		logrus.WithError(err).Fatal("Failed to register rpc service")
	}

	server := http.Server{
		Addr:    conf.Endpoint,
		Handler: node.NewHTTPHandlerStack(handler, []string{"*"}, []string{"*"}, []byte{}),
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("Failed to shutdown rpc server")
		}
	}()

	logrus.WithField("endpoint", conf.Endpoint).Info("RPC server started")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.WithError(err).Fatal("Failed to serve rpc")
	}
}
