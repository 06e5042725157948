package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"github.com/riteshkumar/savings-ledger/internal/auth"
	"github.com/riteshkumar/savings-ledger/internal/handler"
	"github.com/riteshkumar/savings-ledger/internal/middleware"
	"github.com/riteshkumar/savings-ledger/internal/pkg/grpcserver"
	"github.com/riteshkumar/savings-ledger/internal/repository"
	"github.com/riteshkumar/savings-ledger/internal/service"
	u "github.com/riteshkumar/savings-ledger/internal/utils"
)

const tokenTTL = 24 * time.Hour

type Config struct {
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	ServerPort     string
	StorageDriver  string
	JWTSecret      string
	GRPCHealthAddr string
	LogLevel       string
}

func main() {
	config := loadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(config.LogLevel),
	}))
	slog.SetDefault(logger)

	if config.JWTSecret == "" {
		logger.Error("JWT_SECRET must be set")
		os.Exit(1)
	}

	savingService, closeStore, err := buildService(config, logger)
	if err != nil {
		logger.Error("failed to initialise storage", "driver", config.StorageDriver, "error", err.Error())
		os.Exit(1)
	}
	defer closeStore()

	issuer := auth.NewTokenIssuer(config.JWTSecret, tokenTTL)
	savingHandler := handler.NewSavingHandler(savingService, logger)

	router := mux.NewRouter()
	router.Use(middleware.Recoverer(logger))
	router.Use(loggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		u.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(issuer))
	savingHandler.RegisterRoutes(api)

	server := &http.Server{
		Addr:         ":" + config.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lis, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Error("failed to bind http listener", "addr", server.Addr, "error", err.Error())
		os.Exit(1)
	}

	var healthServer *grpcserver.Server
	if config.GRPCHealthAddr != "" {
		healthServer = grpcserver.New(config.GRPCHealthAddr)
		if err := healthServer.Listen(); err != nil {
			logger.Error("failed to bind grpc health listener", "addr", config.GRPCHealthAddr, "error", err.Error())
			os.Exit(1)
		}
		go func() {
			logger.Info("starting grpc health server on " + healthServer.Addr())
			if err := healthServer.Serve(); err != nil {
				logger.Error("grpc health server stopped", "error", err.Error())
			}
		}()
	}

	go func() {
		logger.Info("starting server on port "+config.ServerPort, "storage", config.StorageDriver)
		if err := server.Serve(lis); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to serve http", "error", err.Error())
			os.Exit(1)
		}
	}()
	// both listeners are bound before health reports SERVING
	if healthServer != nil {
		healthServer.SetServing(true)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	if healthServer != nil {
		healthServer.SetServing(false)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err.Error())
	}
	if healthServer != nil {
		healthServer.Stop()
	}

	logger.Info("server exited gracefully")
}

// buildService wires the ledger onto the configured storage driver.
func buildService(cfg Config, logger *slog.Logger) (service.SavingService, func(), error) {
	switch cfg.StorageDriver {
	case "memory":
		store := repository.NewMemoryStore()
		logger.Warn("using in-memory storage, data is lost on restart")
		return service.NewSavingService(store, store.Savings(), store.Transactions(), store.Audit(), logger), func() {}, nil
	case "postgres":
		db, err := connectDB(cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to database successfully")
		svc := service.NewSavingService(
			repository.NewTxManager(db),
			repository.NewSavingRepository(db),
			repository.NewSavingTransactionRepository(db),
			repository.NewAuditRepository(db),
			logger,
		)
		return svc, func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func loadConfig() Config {
	return Config{
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "password"),
		DBName:         getEnv("DB_NAME", "savings"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		StorageDriver:  getEnv("STORAGE_DRIVER", "postgres"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func connectDB(cfg Config) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info("incoming request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
