// Command ledgerd runs the sealed-bid auction ledger inside a Nitro enclave,
// or over TCP for local development.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	_ "github.com/lib/pq"
	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/sealedauction/config"
	"github.com/cloudx-io/sealedauction/core"
	"github.com/cloudx-io/sealedauction/events"
	"github.com/cloudx-io/sealedauction/fhe"
	"github.com/cloudx-io/sealedauction/httpapi"
	"github.com/cloudx-io/sealedauction/service"
	"github.com/cloudx-io/sealedauction/store"
)

// getEnclaveAttester returns the NSM handle, or an error outside an enclave.
func getEnclaveAttester() (fhe.Attester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// openStore returns the ledger store and, when Postgres is configured, the
// table the gateway persists its ciphertexts to. Postgres serves both.
func openStore(ctx context.Context, cfg config.Config) (core.Store, fhe.HandleStore, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Printf("WARN: No database configured, ledger state is kept in memory only")
		return store.NewMemoryStore(), nil, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	pg := store.NewPGStore(db)
	if err := pg.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Printf("INFO: Postgres store ready")
	return pg, pg, func() { _ = db.Close() }, nil
}

// openLedger builds the gateway and the registry and restores both. The
// gateway is restored first so that the registry can check every handle its
// auctions reference.
func openLedger(ctx context.Context, cfg config.Config, st core.Store, handles fhe.HandleStore, sink core.EventSink) (*core.Registry, *fhe.Gateway, error) {
	keyManager, err := fhe.NewKeyManager()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}

	var opts []fhe.Option
	if handles != nil {
		sealer, err := fhe.NewRecordSealer(cfg.GatewaySealKey)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, fhe.WithHandleStore(handles, sealer))
	}
	gateway := fhe.NewGateway(keyManager, opts...)
	if err := gateway.Restore(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to restore gateway: %w", err)
	}
	log.Printf("INFO: Gateway %s initialized", gateway.ID())

	registry := core.NewRegistry(gateway,
		core.WithStore(st),
		core.WithEventSink(sink),
		core.WithFee(cfg.AuctionFee),
		core.WithPolicy(core.Policy{AllowCreatorBids: cfg.AllowCreatorBids}),
	)
	if err := registry.Restore(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to restore ledger: %w", err)
	}
	log.Printf("INFO: Ledger restored with %d auctions (fee %s)", registry.AuctionCount(), registry.AuctionFee())
	return registry, gateway, nil
}

func eventSinks(ctx context.Context, cfg config.Config) (events.Multi, func(), error) {
	sinks := events.Multi{events.LogSink{}}
	closers := []func(){}

	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := events.NewKafkaSink(events.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create kafka sink: %w", err)
		}
		sinks = append(sinks, kafkaSink)
		closers = append(closers, func() {
			if err := kafkaSink.Close(); err != nil {
				log.Printf("ERROR: Failed to close kafka sink: %v", err)
			}
		})
		log.Printf("INFO: Publishing events to kafka topic %s", cfg.KafkaTopic)
	}

	if cfg.ArchiveBucket != "" {
		archiver, err := events.NewS3Archiver(ctx, cfg.ArchiveBucket, cfg.ArchivePrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create result archiver: %w", err)
		}
		sinks = append(sinks, archiver)
		log.Printf("INFO: Archiving auction results to s3://%s", cfg.ArchiveBucket)
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

func listen(cfg config.Config) (net.Listener, error) {
	if cfg.TCPAddr != "" {
		l, err := net.Listen("tcp", cfg.TCPAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to create tcp listener: %w", err)
		}
		log.Printf("INFO: Ledger listening on tcp %s", cfg.TCPAddr)
		return l, nil
	}
	l, err := vsock.Listen(cfg.VsockPort, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create vsock listener: %w", err)
	}
	log.Printf("INFO: Ledger listening on vsock port %d", cfg.VsockPort)
	return l, nil
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	st, handles, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sinks, closeSinks, err := eventSinks(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	registry, gateway, err := openLedger(ctx, cfg, st, handles, sinks)
	if err != nil {
		return err
	}

	var opts []service.Option
	if attester, err := getEnclaveAttester(); err != nil {
		log.Printf("WARN: %v (responses will carry no attestation)", err)
	} else {
		opts = append(opts, service.WithAttester(attester))
	}
	svc := service.New(registry, gateway, opts...)

	if cfg.HTTPAddr != "" {
		verifier, err := httpapi.NewVerifier(cfg.JWTHMACSecret, cfg.JWTPublicKeyFile)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpapi.New(svc, verifier).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("INFO: HTTP API listening on %s", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("ERROR: HTTP server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	listener, err := listen(cfg)
	if err != nil {
		return err
	}
	return NewLedgerServer(svc, cfg.MaxWorkers).Serve(ctx, listener)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
	log.Printf("INFO: Ledger stopped")
}
