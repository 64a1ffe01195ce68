package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/giftvault-io/giftvault/internal/cache"
	"github.com/giftvault-io/giftvault/internal/config"
	"github.com/giftvault-io/giftvault/internal/db"
	internalhttp "github.com/giftvault-io/giftvault/internal/http"
	"github.com/giftvault-io/giftvault/internal/inventory"
	"github.com/giftvault-io/giftvault/internal/logging"
	"github.com/giftvault-io/giftvault/internal/models"
	"github.com/giftvault-io/giftvault/internal/security"
	"github.com/giftvault-io/giftvault/internal/sweeper"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate opens the database and runs schema migrations.
func Migrate(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the inventory service: database, sweeper and HTTP API.
// It blocks until ctx is cancelled, then shuts the server down gracefully.
func RunServer(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log)

	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if db.IsSQLite(conn) {
		log.Warn("running on sqlite; use postgres when deploying more than one instance")
	}

	keyring, errRing := cfg.Keyring()
	if errRing != nil {
		return errRing
	}

	inv := inventory.NewService(conn, keyring)
	sweeper.New(inv, cfg.Sweep.Interval()).Start(ctx)

	router := internalhttp.NewRouter(internalhttp.Deps{
		DB:               conn,
		Inventory:        inv,
		StatsCache:       cache.NewStatsCache(cfg.Redis),
		JWTSecret:        cfg.JWT.Secret,
		JWTExpiry:        cfg.JWT.Expiry(),
		DefaultValidDays: cfg.Codes.ValidDays(),
	})

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("giftvault listening on %s", cfg.Listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return fmt.Errorf("app: shutdown: %w", errShutdown)
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// CreateAdmin inserts or updates an administrator account with a bcrypt
// password hash.
func CreateAdmin(ctx context.Context, configPath, username, password string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(cfg.Database.DSN)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("app: hash password: %w", errHash)
	}

	var admin models.Admin
	errFind := conn.WithContext(ctx).Where("username = ?", username).First(&admin).Error
	switch {
	case errFind == nil:
		admin.Password = hash
		admin.Active = true
		if errSave := conn.WithContext(ctx).Save(&admin).Error; errSave != nil {
			return fmt.Errorf("app: update admin: %w", errSave)
		}
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		admin = models.Admin{Username: username, Password: hash, Active: true}
		if errCreate := conn.WithContext(ctx).Create(&admin).Error; errCreate != nil {
			return fmt.Errorf("app: create admin: %w", errCreate)
		}
	default:
		return fmt.Errorf("app: find admin: %w", errFind)
	}

	log.Infof("admin %s ready (id=%d)", username, admin.ID)
	return nil
}
