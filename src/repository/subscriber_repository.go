package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalbridge/src/database"
	"signalbridge/src/model"
	"signalbridge/src/registry"
)

// GormSubscriberStore is the durable registry.SubscriberStore.
type GormSubscriberStore struct {
	db *gorm.DB
}

func NewSubscriberRepository() *GormSubscriberStore {
	logger.WithField("component", "GormSubscriberStore").
		Info("Creating new subscriber repository with MainDB")
	return &GormSubscriberStore{db: database.MainDB}
}

func NewSubscriberRepositoryWithDB(db *gorm.DB) *GormSubscriberStore {
	return &GormSubscriberStore{db: db}
}

func (r *GormSubscriberStore) load(ctx context.Context, uid string) (*model.Subscriber, error) {
	var sub model.Subscriber
	err := r.db.WithContext(ctx).Preload("Positions").Where("uid = ?", uid).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *GormSubscriberStore) Register(ctx context.Context, uid string, requested []string) (*model.Subscriber, error) {
	sub, err := r.load(ctx, uid)
	if errors.Is(err, registry.ErrNotFound) {
		now := time.Now()
		sub = &model.Subscriber{
			UID:                 uid,
			Status:              model.StatusPending,
			RequestedStrategies: requested,
			Leverage:            1,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if createErr := r.db.WithContext(ctx).Create(sub).Error; createErr != nil {
			return nil, createErr
		}
		return sub, nil
	}
	if err != nil {
		return nil, err
	}

	if sub.Status == model.StatusApproved {
		return sub, nil
	}

	sub.RequestedStrategies = requested
	sub.Status = model.StatusPending
	sub.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *GormSubscriberStore) Get(ctx context.Context, uid string) (*model.Subscriber, error) {
	return r.load(ctx, uid)
}

func (r *GormSubscriberStore) List(ctx context.Context) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	if err := r.db.WithContext(ctx).Preload("Positions").Order("created_at").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *GormSubscriberStore) Approve(ctx context.Context, uid string, strategyIDs []string) (*model.Subscriber, error) {
	if len(strategyIDs) == 0 {
		return nil, registry.ErrNoStrategies
	}

	sub, err := r.load(ctx, uid)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sub.Status = model.StatusApproved
	sub.RequestedStrategies = strategyIDs
	sub.ApprovedStrategies = strategyIDs
	if sub.AccessKey == "" {
		sub.AccessKey = uuid.NewString()
	}
	sub.ApprovedAt = &now
	sub.UpdatedAt = now

	if err := r.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *GormSubscriberStore) Deny(ctx context.Context, uid string) (*model.Subscriber, error) {
	sub, err := r.load(ctx, uid)
	if err != nil {
		return nil, err
	}

	// Positions are kept as an audit trail; credentials and auto-trading go.
	sub.Status = model.StatusDenied
	sub.ApprovedStrategies = nil
	sub.AccessKey = ""
	sub.AutoTrading = false
	sub.UpdatedAt = time.Now()

	if err := r.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *GormSubscriberStore) SetStrategies(ctx context.Context, uid string, strategyIDs []string) (*model.Subscriber, error) {
	if len(strategyIDs) == 0 {
		return nil, registry.ErrNoStrategies
	}

	sub, err := r.load(ctx, uid)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.StatusApproved {
		return nil, model.ErrUIDNotApproved
	}

	sub.ApprovedStrategies = strategyIDs
	sub.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *GormSubscriberStore) VerifyAccess(ctx context.Context, uid, key string) (*model.Subscriber, error) {
	if uid == "" || key == "" {
		return nil, model.ErrMissingCredentials
	}

	sub, err := r.load(ctx, uid)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, model.ErrUIDNotFound
	}
	if err != nil {
		return nil, err
	}
	if sub.Status != model.StatusApproved {
		return nil, model.ErrUIDNotApproved
	}
	if sub.AccessKey != key {
		return nil, model.ErrUIDCredentialsMismatch
	}
	return sub, nil
}

func (r *GormSubscriberStore) SetAutoTrading(ctx context.Context, uid string, enabled bool) (*model.Subscriber, error) {
	sub, err := r.load(ctx, uid)
	if err != nil {
		return nil, err
	}
	sub.AutoTrading = enabled
	sub.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *GormSubscriberStore) SetTradeConfig(ctx context.Context, uid string, cfg registry.TradeConfig) (*model.Subscriber, error) {
	sub, err := r.load(ctx, uid)
	if err != nil {
		return nil, err
	}

	if cfg.InvestmentAmount != nil {
		amount, parseErr := decimal.NewFromString(*cfg.InvestmentAmount)
		if parseErr != nil {
			return nil, parseErr
		}
		sub.InvestmentAmount = amount
	}
	if cfg.Leverage != nil {
		sub.Leverage = *cfg.Leverage
	}
	if cfg.PinnedSymbol != nil {
		sub.PinnedSymbol = *cfg.PinnedSymbol
	}
	sub.UpdatedAt = time.Now()

	if err := r.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

func (r *GormSubscriberStore) ConnectExchange(ctx context.Context, uid, apiKey string, sealedSecret []byte) (*model.Subscriber, error) {
	sub, err := r.load(ctx, uid)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sub.Exchange = &model.ExchangeConnection{
		Connected:       true,
		APIKey:          apiKey,
		SealedSecret:    sealedSecret,
		LastConnectedAt: &now,
	}
	sub.UpdatedAt = now

	if err := r.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

// ListApprovedByStrategy filters approved subscribers by approved-strategy
// membership in process; the approved set is a JSON column.
func (r *GormSubscriberStore) ListApprovedByStrategy(ctx context.Context, strategyID string) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	err := r.db.WithContext(ctx).
		Preload("Positions").
		Where("status = ?", model.StatusApproved).
		Order("created_at").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}

	out := subs[:0]
	for i := range subs {
		if subs[i].HasStrategy(strategyID) {
			out = append(out, subs[i])
		}
	}
	return out, nil
}

func (r *GormSubscriberStore) UpsertPosition(ctx context.Context, uid string, pos model.Position) error {
	pos.SubscriberUID = uid

	var existing model.Position
	err := r.db.WithContext(ctx).
		Where("subscriber_uid = ? AND contract = ?", uid, pos.Contract).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.WithContext(ctx).Create(&pos).Error
	case err != nil:
		return err
	default:
		pos.ID = existing.ID
		pos.OpenedAt = existing.OpenedAt
		return r.db.WithContext(ctx).Save(&pos).Error
	}
}

func (r *GormSubscriberStore) RemovePositions(ctx context.Context, uid, contract string) (int, error) {
	res := r.db.WithContext(ctx).
		Where("subscriber_uid = ? AND contract = ?", uid, contract).
		Delete(&model.Position{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
