package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/dhruvbuilds/strategia-connect/internal/config"
	"github.com/dhruvbuilds/strategia-connect/internal/docstore"
	"github.com/dhruvbuilds/strategia-connect/internal/handlers"
	appMiddleware "github.com/dhruvbuilds/strategia-connect/internal/middleware"
	"github.com/dhruvbuilds/strategia-connect/internal/services"
	"github.com/dhruvbuilds/strategia-connect/internal/session"
	"github.com/dhruvbuilds/strategia-connect/internal/verify"
)

func main() {
	cfg := config.Load()
	cfg.BindFlags(pflag.CommandLine)
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry, err := verify.LoadRegistry(cfg.RegistryPath)
	if err != nil {
		log.Fatalf("Failed to load registry: %v", err)
	}
	log.Printf("[server] registry loaded path=%s registrants=%d core=%d", cfg.RegistryPath, len(registry.Registrants), len(registry.CoreTeam))

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Backend, err)
	}
	defer store.Close()

	if cfg.AdminCodeHash == "" {
		log.Printf("Warning: ADMIN_CODE_HASH is not set, organizer login is disabled")
	}

	deps := session.Deps{
		Store:         store,
		Registry:      registry,
		Verifier:      registry.Verifier(cfg.VerifyDelay),
		AdminCodeHash: []byte(cfg.AdminCodeHash),
		WriteTimeout:  cfg.WriteTimeout,
	}
	if mailer := services.NewSendGridMailer(cfg.SendGridAPIKey, cfg.AlertFromEmail, cfg.AlertToEmail); mailer.Configured() {
		deps.Alerter = mailer
	}

	var avatars *services.AvatarService
	if cfg.AvatarBucket != "" {
		objects, err := services.NewGCSObjectStore(ctx, cfg.AvatarBucket)
		if err != nil {
			log.Printf("Warning: avatar uploads disabled: %v", err)
		} else {
			defer objects.Close()
			avatars = services.NewAvatarService(objects)
		}
	}

	manager := session.NewManager(deps, cfg.DataDir)
	defer manager.Close()

	limiter := appMiddleware.NewIPRateLimiter(cfg.VerifyRatePerMin, cfg.VerifyRateBurst)
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Prune(30 * time.Minute)
			}
		}
	}()

	router := handlers.NewRouter(handlers.RouterDeps{
		Config:    cfg,
		Sessions:  manager,
		Registry:  registry,
		Avatars:   avatars,
		Recaptcha: services.NewRecaptchaVerifier(cfg.RecaptchaSecret),
		Limiter:   limiter,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[server] shutdown error=%v", err)
		}
	}()

	log.Printf("🚀 STRATEGIA Connect API starting on %s (store=%s)", cfg.ServerAddress, cfg.Backend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
	log.Printf("[server] stopped, %d sessions saved", manager.Len())
}

func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		log.Printf("Warning: using the in-memory store, data is lost on restart")
		return docstore.NewMemoryStore(), nil
	case config.BackendFirestore:
		return docstore.NewFirestoreStore(ctx, docstore.FirestoreConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsJSON: cfg.FirebaseCredentialsJSON,
		})
	case config.BackendMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI is not set")
		}
		return docstore.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
