package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalbridge/src/database"
	"signalbridge/src/model"
	"signalbridge/src/registry"
)

// GormWebhookStore is the durable registry.WebhookStore. A single row holds
// the registration.
type GormWebhookStore struct {
	db *gorm.DB
}

func NewWebhookRepository() *GormWebhookStore {
	logger.WithField("component", "GormWebhookStore").
		Info("Creating new webhook repository with MainDB")
	return &GormWebhookStore{db: database.MainDB}
}

func NewWebhookRepositoryWithDB(db *gorm.DB) *GormWebhookStore {
	return &GormWebhookStore{db: db}
}

func (r *GormWebhookStore) Get(ctx context.Context) (*model.WebhookRegistration, error) {
	var reg model.WebhookRegistration
	err := r.db.WithContext(ctx).Order("id").First(&reg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *GormWebhookStore) Rotate(ctx context.Context) (*model.WebhookRegistration, error) {
	reg, err := r.Get(ctx)
	if errors.Is(err, registry.ErrNotFound) {
		now := time.Now()
		reg = &model.WebhookRegistration{
			Secret:    uuid.NewString(),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if createErr := r.db.WithContext(ctx).Create(reg).Error; createErr != nil {
			return nil, createErr
		}
		return reg, nil
	}
	if err != nil {
		return nil, err
	}

	reg.Secret = uuid.NewString()
	reg.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Save(reg).Error; err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *GormWebhookStore) SetRoutes(ctx context.Context, routes []string) (*model.WebhookRegistration, error) {
	reg, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}

	reg.Routes = routes
	reg.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Save(reg).Error; err != nil {
		return nil, err
	}
	return reg, nil
}
