package main

import (
	"fmt"

	"github.com/samber/do/v2"
	"gorm.io/gorm"

	"github.com/gonasi/gonasi-sub007/internal/config"
	"github.com/gonasi/gonasi-sub007/internal/database"
	"github.com/gonasi/gonasi-sub007/internal/handlers"
	"github.com/gonasi/gonasi-sub007/internal/pricing"
	"github.com/gonasi/gonasi-sub007/internal/services"
	"github.com/gonasi/gonasi-sub007/internal/validation"
	"github.com/gonasi/gonasi-sub007/internal/ws"
)

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.Provide(injector, func(i do.Injector) (*gorm.DB, error) {
		cfg := do.MustInvoke[*config.Config](i)
		db, err := database.Connect(cfg)
		if err != nil {
			return nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("failed to run migration: %w", err)
		}
		return db, nil
	})
	do.Provide(injector, func(i do.Injector) (*ws.Hub, error) {
		return ws.NewHub(), nil
	})
	do.Provide(injector, func(i do.Injector) (*validation.Validator, error) {
		return validation.New(), nil
	})

	registerServices(injector)
	registerHandlers(injector)
	return injector
}

func registerServices(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*services.AuthService, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return services.NewAuthService(do.MustInvoke[*gorm.DB](i), cfg.JWTSecret, cfg.JWTTTL), nil
	})
	do.Provide(injector, func(i do.Injector) (*services.OrganizationService, error) {
		return services.NewOrganizationService(do.MustInvoke[*gorm.DB](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*services.SessionLocks, error) {
		return services.NewSessionLocks(), nil
	})
	do.Provide(injector, func(i do.Injector) (*services.SessionService, error) {
		return services.NewSessionService(
			do.MustInvoke[*gorm.DB](i),
			do.MustInvoke[*services.OrganizationService](i),
			do.MustInvoke[*validation.Validator](i),
			do.MustInvoke[*services.SessionLocks](i),
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*services.BlockTimers, error) {
		return services.NewBlockTimers(), nil
	})
	do.Provide(injector, func(i do.Injector) (*services.ControlService, error) {
		return services.NewControlService(
			do.MustInvoke[*gorm.DB](i),
			do.MustInvoke[*services.SessionService](i),
			services.NewScoringService(),
			do.MustInvoke[*ws.Hub](i),
			do.MustInvoke[*services.BlockTimers](i),
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*services.ParticipantService, error) {
		return services.NewParticipantService(
			do.MustInvoke[*gorm.DB](i),
			do.MustInvoke[*ws.Hub](i),
			do.MustInvoke[*services.SessionLocks](i),
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*services.UploadService, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return services.NewUploadService(
			do.MustInvoke[*gorm.DB](i),
			do.MustInvoke[*services.OrganizationService](i),
			cfg.UploadSecret, cfg.UploadURLTTL, cfg.StorageBaseURL,
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*services.CourseService, error) {
		cfg := do.MustInvoke[*config.Config](i)
		kes, err := cfg.KESRate()
		if err != nil {
			return nil, err
		}
		return services.NewCourseService(
			do.MustInvoke[*gorm.DB](i),
			do.MustInvoke[*services.OrganizationService](i),
			pricing.NewValidator(do.MustInvoke[*validation.Validator](i)),
			pricing.DefaultRates(kes),
		), nil
	})
}

func registerHandlers(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*handlers.AuthHandler, error) {
		return handlers.NewAuthHandler(do.MustInvoke[*services.AuthService](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*handlers.OrganizationHandler, error) {
		return handlers.NewOrganizationHandler(do.MustInvoke[*services.OrganizationService](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*handlers.SessionHandler, error) {
		return handlers.NewSessionHandler(do.MustInvoke[*services.SessionService](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*handlers.ControlHandler, error) {
		return handlers.NewControlHandler(
			do.MustInvoke[*services.ControlService](i),
			do.MustInvoke[*services.SessionService](i),
			do.MustInvoke[*services.ParticipantService](i),
		), nil
	})
	do.Provide(injector, func(i do.Injector) (*handlers.ParticipantHandler, error) {
		return handlers.NewParticipantHandler(do.MustInvoke[*services.ParticipantService](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*handlers.CourseHandler, error) {
		return handlers.NewCourseHandler(do.MustInvoke[*services.CourseService](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*handlers.UploadHandler, error) {
		return handlers.NewUploadHandler(do.MustInvoke[*services.UploadService](i)), nil
	})
	do.Provide(injector, func(i do.Injector) (*handlers.WSHandler, error) {
		return handlers.NewWSHandler(
			do.MustInvoke[*ws.Hub](i),
			do.MustInvoke[*services.ControlService](i),
			do.MustInvoke[*services.SessionService](i),
			do.MustInvoke[*services.ParticipantService](i),
		), nil
	})
}
