package repository

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalbridge/src/database"
	"signalbridge/src/model"
	"signalbridge/src/registry"
)

// GormStrategyStore is the durable registry.StrategyStore.
type GormStrategyStore struct {
	db *gorm.DB
}

func NewStrategyRepository() *GormStrategyStore {
	logger.WithField("component", "GormStrategyStore").
		Info("Creating new strategy repository with MainDB")
	return &GormStrategyStore{db: database.MainDB}
}

func NewStrategyRepositoryWithDB(db *gorm.DB) *GormStrategyStore {
	return &GormStrategyStore{db: db}
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			b.WriteRune('-')
			lastDash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func (r *GormStrategyStore) Create(ctx context.Context, name, description string, synonyms []string) (*model.Strategy, error) {
	id := slugify(name)
	if id == "" {
		id = uuid.NewString()[:8]
	}

	var exists int64
	if err := r.db.WithContext(ctx).Model(&model.Strategy{}).Where("id = ?", id).Count(&exists).Error; err != nil {
		return nil, err
	}
	if exists > 0 {
		id = id + "-" + uuid.NewString()[:8]
	}

	now := time.Now()
	strat := model.Strategy{
		ID:          id,
		Name:        name,
		Description: description,
		Active:      true,
		Aliases:     model.BuildAliases(id, name, synonyms),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.db.WithContext(ctx).Create(&strat).Error; err != nil {
		return nil, err
	}
	return &strat, nil
}

func (r *GormStrategyStore) Get(ctx context.Context, id string) (*model.Strategy, error) {
	var strat model.Strategy
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&strat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, registry.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &strat, nil
}

func (r *GormStrategyStore) Update(ctx context.Context, id string, update registry.StrategyUpdate) (*model.Strategy, error) {
	strat, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		strat.Name = *update.Name
	}
	if update.Description != nil {
		strat.Description = *update.Description
	}
	if update.Active != nil {
		strat.Active = *update.Active
	}
	if update.Name != nil || update.Synonyms != nil {
		strat.Aliases = model.BuildAliases(strat.ID, strat.Name, update.Synonyms)
	}
	strat.UpdatedAt = time.Now()

	if err := r.db.WithContext(ctx).Save(strat).Error; err != nil {
		return nil, err
	}
	return strat, nil
}

// MatchByIndicator loads the active catalog and matches the normalized
// indicator in process: alias sets live in a JSON column, so membership
// cannot be pushed down to SQL portably.
func (r *GormStrategyStore) MatchByIndicator(ctx context.Context, raw string) (*model.Strategy, error) {
	var strategies []model.Strategy
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("created_at").Find(&strategies).Error; err != nil {
		return nil, err
	}
	for i := range strategies {
		if strategies[i].HasAlias(raw) {
			return &strategies[i], nil
		}
	}
	return nil, registry.ErrNotFound
}

func (r *GormStrategyStore) List(ctx context.Context) ([]model.Strategy, error) {
	var strategies []model.Strategy
	if err := r.db.WithContext(ctx).Order("created_at").Find(&strategies).Error; err != nil {
		return nil, err
	}
	return strategies, nil
}
