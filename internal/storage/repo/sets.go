package repo

import (
	"context"

	"github.com/John-Robertt/subhub/internal/model"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

func (r *Repository) GetCustomGroupSet(ctx context.Context, id string) (*model.CustomSet, error) {
	var row CustomGroupSetRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &model.CustomSet{ID: row.ID, Name: row.Name, Content: row.Content}, nil
}

func (r *Repository) GetCustomRuleSet(ctx context.Context, id string) (*model.CustomSet, error) {
	var row CustomRuleSetRow
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return &model.CustomSet{ID: row.ID, Name: row.Name, Content: row.Content}, nil
}

// SaveCustomGroupSet creates or replaces a group set by ID.
func (r *Repository) SaveCustomGroupSet(ctx context.Context, set model.CustomSet) error {
	row := &CustomGroupSetRow{ID: set.ID, Name: set.Name, Content: set.Content}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "content", "updated_at"}),
	}).Create(row).Error
}

// SaveCustomRuleSet creates or replaces a rule set by ID.
func (r *Repository) SaveCustomRuleSet(ctx context.Context, set model.CustomSet) error {
	row := &CustomRuleSetRow{ID: set.ID, Name: set.Name, Content: set.Content}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "content", "updated_at"}),
	}).Create(row).Error
}

func (r *Repository) GetSubscription(ctx context.Context, token string) (*model.Subscription, error) {
	var row SubscriptionRow
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&row).Error; err != nil {
		return nil, notFound(err)
	}
	return row.toModel(), nil
}

// SaveSubscription creates or replaces a subscription by token.
func (r *Repository) SaveSubscription(ctx context.Context, sub model.Subscription) error {
	sources := sub.SelectedSources
	if sources == nil {
		sources = []string{}
	}
	row := &SubscriptionRow{
		Token:           sub.Token,
		Username:        sub.Username,
		Remark:          sub.Remark,
		SelectedSources: datatypes.NewJSONSlice(sources),
		GroupID:         sub.GroupID,
		RuleID:          sub.RuleID,
		CustomRules:     sub.CustomRules,
		Enabled:         sub.Enabled,
		CreatedAt:       createdAt(sub.CreatedAt),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "remark", "selected_sources", "group_id", "rule_id", "custom_rules", "enabled",
		}),
	}).Create(row).Error
}
