package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"stablelink/internal/auth"
	"stablelink/internal/config"
	"stablelink/internal/handler"
	"stablelink/internal/repository"
	"stablelink/internal/service"
)

func connectWithRetry(cfg *config.Config, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	dsn := cfg.Database.GetDSN()

	// Сначала подключаемся к системной базе postgres
	pgDSN := strings.Replace(dsn, "dbname="+cfg.Database.Name, "dbname=postgres", 1)
	pgDB, err := sqlx.Connect("postgres", pgDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %v", err)
	}
	defer pgDB.Close()

	// Проверяем, существует ли база данных сервиса
	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Database.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %v", err)
	}

	if !exists {
		log.Printf("Database %s does not exist, creating...", cfg.Database.Name)
		_, err = pgDB.Exec(fmt.Sprintf("CREATE DATABASE %s", cfg.Database.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}

		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxAttempts, err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %v", maxAttempts, err)
}

func runMigrations(cfg *config.Config) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", databaseURL)
		if err == nil {
			break
		}
		log.Printf("Failed to create migrate instance (attempt %d/5): %v", i+1, err)
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Printf("Found dirty database state at version %d, attempting to force version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func main() {
	// Загружаем конфигурации
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	authConfig, err := auth.NewConfig(".auth.env")
	if err != nil {
		log.Fatalf("Failed to load auth config: %v", err)
	}

	// Подключаемся к базе данных
	db, err := connectWithRetry(appConfig, 5, time.Second*5)
	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := runMigrations(appConfig); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	verifier := auth.NewVerifier(authConfig)

	// Таблица наборов: встроенные дефолты, при наличии файла — из него
	packTable := service.DefaultPacks()
	if packs, err := config.LoadPacks("packs.yaml"); err != nil {
		log.Fatalf("Failed to load packs config: %v", err)
	} else if packs != nil {
		log.Printf("Loaded %d packs from packs.yaml", len(packs))
		packTable = service.NewPackTable(packs)
	}

	// Инициализация репозиториев
	connRepo := repository.NewConnectionRepository(db)
	grantRepo := repository.NewGrantRepository(db)
	shareRepo := repository.NewShareRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	resourceRepo := repository.NewResourceRepository(db)

	// Инициализация сервисов
	connectionService := service.NewConnectionService(connRepo, auditRepo)
	grantService := service.NewGrantService(connRepo, grantRepo)
	shareService := service.NewShareService(shareRepo, packTable)
	resolverService := service.NewResolverService(connRepo, grantRepo, shareRepo, auditRepo, resourceRepo)

	// Инициализация хендлеров
	connectionHandler := handler.NewConnectionHandler(connectionService, verifier)
	grantHandler := handler.NewGrantHandler(grantService, resolverService, verifier)
	shareHandler := handler.NewShareHandler(shareService, resolverService, verifier)

	// Настройка HTTP роутера
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// HTTP маршруты
	r.Route("/v1", func(r chi.Router) {
		r.Route("/connections", func(r chi.Router) {
			r.Post("/", connectionHandler.CreateConnection)
			r.Get("/", connectionHandler.ListConnections)
			r.Get("/{id}/audit", connectionHandler.ListAudit)
			r.Post("/{id}/grants", grantHandler.CreateGrant)
			r.Get("/{id}/grants", grantHandler.ListGrants)

			r.Route("/token/{token}", func(r chi.Router) {
				r.Post("/accept", connectionHandler.AcceptConnection)
				r.Post("/reject", connectionHandler.RejectConnection)
				r.Post("/revoke", connectionHandler.RevokeConnection)
			})
		})

		r.Route("/grants", func(r chi.Router) {
			r.Delete("/{id}", grantHandler.RevokeGrant)
			r.Get("/{id}/records", grantHandler.ResolveGrant)
		})

		r.Route("/shares", func(r chi.Router) {
			r.Post("/", shareHandler.CreateShare)
			r.Get("/", shareHandler.ListShares)
			r.Get("/packs", shareHandler.ListPacks)
			r.Delete("/{id}", shareHandler.RevokeShare)

			// Публичный маршрут: аутентификация — самим токеном
			r.Get("/token/{token}", shareHandler.ResolveShareToken)
		})
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	// Канал для сигналов завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Запускаем HTTP сервер
	go func() {
		log.Printf("Starting HTTP server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Свипер истекших записей: только гигиена листингов, корректность
	// обеспечивается ленивыми проверками при чтении
	sweepTicker := time.NewTicker(1 * time.Hour)
	go func() {
		for {
			select {
			case <-sweepTicker.C:
				ctx := context.Background()
				if n, err := connRepo.MarkExpired(ctx); err != nil {
					log.Printf("Error sweeping expired connections: %v", err)
				} else if n > 0 {
					log.Printf("Swept %d expired connections", n)
				}
				if n, err := grantRepo.MarkExpired(ctx); err != nil {
					log.Printf("Error sweeping expired grants: %v", err)
				} else if n > 0 {
					log.Printf("Swept %d expired grants", n)
				}
				if n, err := shareRepo.MarkExpired(ctx); err != nil {
					log.Printf("Error sweeping expired shares: %v", err)
				} else if n > 0 {
					log.Printf("Swept %d expired shares", n)
				}
			case <-quit:
				sweepTicker.Stop()
				return
			}
		}
	}()

	// Ожидаем сигнал завершения
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}

	if err := db.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	}

	log.Println("Server exited properly")
}
