// Command evident-api wires the Service Substrate and HTTP Surface
// together and serves the Evident API, following the teacher's
// sequential-construction-then-serve shape in api/cmd/main.go: connect
// dependencies in order, log each step, log.Fatalf on anything the
// server cannot run without, defer cleanup, then block on an interrupt
// signal for graceful shutdown.
package main

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/DTMBX/evident/internal/analyzers/motions"
	"github.com/DTMBX/evident/internal/analyzers/violations"
	"github.com/DTMBX/evident/internal/api"
	"github.com/DTMBX/evident/internal/audit"
	"github.com/DTMBX/evident/internal/auth"
	"github.com/DTMBX/evident/internal/blobstore"
	"github.com/DTMBX/evident/internal/cache"
	"github.com/DTMBX/evident/internal/config"
	"github.com/DTMBX/evident/internal/db"
	"github.com/DTMBX/evident/internal/events"
	"github.com/DTMBX/evident/internal/export"
	"github.com/DTMBX/evident/internal/gate"
	"github.com/DTMBX/evident/internal/handlers"
	"github.com/DTMBX/evident/internal/housekeeping"
	"github.com/DTMBX/evident/internal/logger"
	"github.com/DTMBX/evident/internal/metrics"
	"github.com/DTMBX/evident/internal/middleware"
	"github.com/DTMBX/evident/internal/processor"
	"github.com/DTMBX/evident/internal/queue"
	"github.com/DTMBX/evident/internal/quota"
	"github.com/DTMBX/evident/internal/ratebucket"
	"github.com/DTMBX/evident/internal/stages/ocr"
	"github.com/DTMBX/evident/internal/stages/transcription"
	internalWebsocket "github.com/DTMBX/evident/internal/websocket"
)

func main() {
	port := getEnv("API_PORT", "8080")
	auditLogEnabled := getEnv("AUDIT_LOG_ENABLED", "true") == "true"
	auditLogBodies := getEnv("AUDIT_LOG_BODIES", "false") == "true"
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "evident")
	dbPassword := getEnv("DB_PASSWORD", "evident")
	dbName := getEnv("DB_NAME", "evident")
	dbSSLMode := getEnv("DB_SSL_MODE", "disable")
	analyzerProfileVersion := getEnv("ANALYZER_PROFILE_VERSION", "v1")

	logger.Initialize(getEnv("LOG_LEVEL", "info"), getEnv("EVIDENT_ENV", "development") == "development")
	log.Println("Starting Evident API server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	configWatcher, err := config.NewWatcher(cfg, os.Getenv("EVIDENT_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to start config watcher: %v", err)
	}
	configWatcher.Start()
	defer configWatcher.Stop()

	log.Println("Connecting to database...")
	database, err := db.NewDatabase(db.Config{
		Host:     dbHost,
		Port:     dbPort,
		User:     dbUser,
		Password: dbPassword,
		DBName:   dbName,
		SSLMode:  dbSSLMode,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("Running database migrations...")
	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Initializing cache...")
	var appCache cache.Cache
	if cfg.CacheBackend == config.CacheRemote {
		remoteCache, err := cache.NewRemoteCache(cache.Config{
			Host:    getEnv("REDIS_HOST", "localhost"),
			Port:    getEnv("REDIS_PORT", "6379"),
			Enabled: true,
		})
		if err != nil {
			log.Printf("Failed to initialize Redis cache, falling back to in-memory: %v", err)
			appCache = cache.NewMemoryCache()
		} else {
			appCache = remoteCache
			defer remoteCache.Close()
		}
	} else {
		appCache = cache.NewMemoryCache()
	}

	log.Println("Initializing event bus...")
	bus, err := events.New(events.Config{
		Backend: events.Backend(cfg.EventsBackend),
		URL:     cfg.EventsURL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize event bus: %v", err)
	}
	defer bus.Close()

	log.Println("Initializing blob store...")
	blobs, err := blobstore.New(cfg.ContentStoreRoot)
	if err != nil {
		log.Fatalf("Failed to initialize blob store: %v", err)
	}

	evidenceDB := db.NewEvidenceDB(database.DB())
	analysisDB := db.NewAnalysisDB(database.DB())
	usageDB := db.NewUsageDB(database.DB())
	userDB := db.NewUserDB(database.DB())
	apiKeyDB := db.NewApiKeyDB(database.DB())
	ruleDB := db.NewAnalyzerRuleDB(database.DB())

	auditLog := audit.New(database.DB(), zerolog.Nop())
	if auditLogEnabled {
		auditLog = audit.New(database.DB(), *logger.GetLogger())
	}

	log.Println("Loading analyzer rule set...")
	ruleSet, err := violations.Load(context.Background(), ruleDB, analyzerProfileVersion)
	if err != nil {
		log.Fatalf("Failed to load analyzer rule set: %v", err)
	}
	scanner := violations.New(ruleSet)

	motionTemplates, err := motions.Load(context.Background(), ruleDB, analyzerProfileVersion)
	if err != nil {
		log.Fatalf("Failed to load motion templates: %v", err)
	}

	transcriptionStage := transcription.New(transcription.LocalProvider{}, bus)
	ocrStage := ocr.New(ocr.LocalProvider{}, bus)
	collector := metrics.NewCollector("evident")

	proc := processor.New(
		evidenceDB,
		analysisDB,
		blobs,
		appCache,
		bus,
		collector,
		auditLog,
		transcriptionStage,
		ocrStage,
		scanner,
		motionTemplates,
		cfg,
	)

	log.Println("Initializing request gate...")
	enforcer := quota.NewEnforcer(usageDB, cfg)
	buckets := ratebucket.New()
	jwtManager := auth.NewJWTManagerWithSessions(&auth.JWTConfig{
		SecretKey:     cfg.JWTSecret,
		Issuer:        "evident-api",
		TokenDuration: 24 * time.Hour,
	}, appCache)

	reqGate := gate.New(userDB, apiKeyDB, usageDB, enforcer, buckets, cfg, auditLog, bus, appCache)

	var ssoHandler *auth.SSOHandler
	if getEnv("OIDC_ENABLED", "false") == "true" {
		log.Println("Initializing enterprise SSO (OIDC)...")
		oidcAuth, err := auth.NewOIDCAuthenticator(&auth.OIDCConfig{
			Enabled:      true,
			ProviderURL:  getEnv("OIDC_PROVIDER_URL", ""),
			ClientID:     getEnv("OIDC_CLIENT_ID", ""),
			ClientSecret: getEnv("OIDC_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("OIDC_REDIRECT_URI", ""),
		})
		if err != nil {
			log.Fatalf("Failed to initialize OIDC: %v", err)
		}
		ssoHandler = auth.NewSSOHandler(oidcAuth, userDB, jwtManager)
	}

	var samlHandler *auth.SAMLHandler
	if getEnv("SAML_ENABLED", "false") == "true" {
		log.Println("Initializing enterprise SSO (SAML)...")
		cert, key, err := loadSAMLCredentials(getEnv("SAML_CERT_FILE", ""), getEnv("SAML_KEY_FILE", ""))
		if err != nil {
			log.Fatalf("Failed to load SAML credentials: %v", err)
		}
		samlAuth, err := auth.NewSAMLAuthenticator(&auth.SAMLConfig{
			Enabled:           true,
			EntityID:          getEnv("SAML_ENTITY_ID", ""),
			MetadataURL:       getEnv("SAML_IDP_METADATA_URL", ""),
			Certificate:       cert,
			PrivateKey:        key,
			AllowIDPInitiated: false,
			SignRequest:       true,
		})
		if err != nil {
			log.Fatalf("Failed to initialize SAML: %v", err)
		}
		samlHandler = auth.NewSAMLHandler(samlAuth, userDB, jwtManager)
	}

	log.Println("Starting processing queue...")
	workQueue := queue.New(cfg.QueueCapacity, cfg.WorkerPoolSize)
	workQueue.Start()
	defer workQueue.Stop()

	log.Println("Starting housekeeping scheduler...")
	scheduler := housekeeping.NewScheduler(buckets)
	scheduler.Start()
	defer scheduler.Stop()

	log.Println("Initializing export bundler...")
	bundler := export.New(evidenceDB, analysisDB, blobs, auditLog)

	log.Println("Starting progress stream hub...")
	progressHub, err := internalWebsocket.NewHub(bus)
	if err != nil {
		log.Fatalf("Failed to start progress stream hub: %v", err)
	}
	defer progressHub.Close()

	h := api.Handlers{
		Auth:      handlers.NewAuthHandler(reqGate),
		APIKeys:   handlers.NewAPIKeyHandler(apiKeyDB),
		Evidence:  handlers.NewEvidenceHandler(reqGate, proc, workQueue, cfg),
		Analysis:  handlers.NewAnalysisHandler(proc, bundler, reqGate),
		RateLimit: handlers.NewRateLimitHandler(buckets, usageDB, cfg),
		Health:    handlers.NewHealthHandler(database.DB(), appCache),
		Progress:  progressHub,
		SSO:       ssoHandler,
		SAML:      samlHandler,
	}

	router := api.NewRouter(h, api.Options{
		JWTManager:      jwtManager,
		UserDB:          userDB,
		Database:        database,
		Cache:           appCache,
		AuditLogEnabled: auditLogEnabled,
		AuditLogBodies:  auditLogBodies,
		CORSOrigins:     api.ParseCORSOrigins(os.Getenv("CORS_ALLOWED_ORIGINS")),
		GlobalLimiter:   middleware.NewRateLimiter(50, 100),
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Printf("Evident API listening on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received shutdown signal: %v", sig)

	shutdownTimeout := 30 * time.Second
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			shutdownTimeout = d
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	} else {
		log.Println("HTTP server stopped gracefully")
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// loadSAMLCredentials reads the PEM-encoded SP certificate and RSA private
// key SAML uses to sign AuthnRequests and decrypt assertions from the paths
// named by SAML_CERT_FILE/SAML_KEY_FILE.
func loadSAMLCredentials(certPath, keyPath string) (*x509.Certificate, *rsa.PrivateKey, error) {
	if certPath == "" || keyPath == "" {
		return nil, nil, fmt.Errorf("SAML_CERT_FILE and SAML_KEY_FILE are required when SAML_ENABLED=true")
	}

	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading SAML certificate: %w", err)
	}
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, nil, fmt.Errorf("no PEM block found in %s", certPath)
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing SAML certificate: %w", err)
	}

	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading SAML private key: %w", err)
	}
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, nil, fmt.Errorf("no PEM block found in %s", keyPath)
	}
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		keyIface, err2 := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
		if err2 != nil {
			return nil, nil, fmt.Errorf("parsing SAML private key: %w", err)
		}
		rsaKey, ok := keyIface.(*rsa.PrivateKey)
		if !ok {
			return nil, nil, fmt.Errorf("SAML private key is not an RSA key")
		}
		key = rsaKey
	}

	return cert, key, nil
}
