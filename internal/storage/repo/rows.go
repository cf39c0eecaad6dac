package repo

import (
	"fmt"
	"time"

	"github.com/John-Robertt/subhub/internal/model"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
)

// Config blobs are stored as YAML text so key order survives the database.
// Seq is an insertion counter that defines read order.

type ProxyRow struct {
	Seq       uint   `gorm:"primaryKey;autoIncrement"`
	ID        string `gorm:"size:36;uniqueIndex;not null"`
	Name      string `gorm:"size:255"`
	Type      string `gorm:"size:32;index"`
	Server    string `gorm:"size:255"`
	Port      int
	Config    string `gorm:"type:text"`
	Source    string `gorm:"size:191;index;not null"`
	CreatedAt time.Time
}

type GroupRow struct {
	Seq       uint   `gorm:"primaryKey;autoIncrement"`
	ID        string `gorm:"size:36;uniqueIndex;not null"`
	Name      string `gorm:"size:255"`
	Type      string `gorm:"size:32"`
	Proxies   datatypes.JSONSlice[string]
	Config    string `gorm:"type:text"`
	Source    string `gorm:"size:191;index;not null"`
	Priority  int
	CreatedAt time.Time
}

type RuleRow struct {
	Seq       uint   `gorm:"primaryKey;autoIncrement"`
	ID        string `gorm:"size:36;uniqueIndex;not null"`
	Text      string `gorm:"type:text"`
	Priority  int
	Source    string `gorm:"size:191;index;not null"`
	CreatedAt time.Time
}

type ConfigItemRow struct {
	Seq    uint   `gorm:"primaryKey;autoIncrement"`
	Source string `gorm:"size:191;not null;uniqueIndex:idx_config_item_source_key"`
	Key    string `gorm:"column:item_key;size:191;not null;uniqueIndex:idx_config_item_source_key"`
	Value  string `gorm:"type:text"`
}

type CustomGroupSetRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255"`
	Content   string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CustomRuleSetRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:255"`
	Content   string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type SubscriptionRow struct {
	Token           string `gorm:"primaryKey;size:64"`
	Username        string `gorm:"size:255;index"`
	Remark          string `gorm:"size:255"`
	SelectedSources datatypes.JSONSlice[string]
	GroupID         string `gorm:"size:64"`
	RuleID          string `gorm:"size:64"`
	CustomRules     string `gorm:"type:text"`
	Enabled         bool
	CreatedAt       time.Time
}

// Models lists every table for migration.
func Models() []any {
	return []any{
		&ProxyRow{},
		&GroupRow{},
		&RuleRow{},
		&ConfigItemRow{},
		&CustomGroupSetRow{},
		&CustomRuleSetRow{},
		&SubscriptionRow{},
	}
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func toProxyRow(p model.Proxy) (*ProxyRow, error) {
	p.Sync()
	cfg, err := encodeYAML(p.Config)
	if err != nil {
		return nil, fmt.Errorf("encode proxy %q: %w", p.Name, err)
	}
	return &ProxyRow{
		ID:        newID(p.ID),
		Name:      p.Name,
		Type:      p.Type,
		Server:    p.Server,
		Port:      p.Port,
		Config:    cfg,
		Source:    p.Source,
		CreatedAt: createdAt(p.CreatedAt),
	}, nil
}

func (r *ProxyRow) toModel() (model.Proxy, error) {
	cfg, err := decodeFields(r.Config)
	if err != nil {
		return model.Proxy{}, fmt.Errorf("decode proxy %s: %w", r.ID, err)
	}
	p := model.Proxy{
		ID:        r.ID,
		Name:      r.Name,
		Type:      r.Type,
		Config:    cfg,
		Source:    r.Source,
		CreatedAt: r.CreatedAt,
	}
	p.Sync()
	return p, nil
}

func toGroupRow(g model.Group) (*GroupRow, error) {
	cfg, err := encodeYAML(g.Config)
	if err != nil {
		return nil, fmt.Errorf("encode group %q: %w", g.Name, err)
	}
	members := g.Proxies
	if members == nil {
		members = []string{}
	}
	return &GroupRow{
		ID:        newID(g.ID),
		Name:      g.Name,
		Type:      g.Type,
		Proxies:   datatypes.NewJSONSlice(members),
		Config:    cfg,
		Source:    g.Source,
		Priority:  g.Priority,
		CreatedAt: createdAt(g.CreatedAt),
	}, nil
}

func (r *GroupRow) toModel() (model.Group, error) {
	cfg, err := decodeFields(r.Config)
	if err != nil {
		return model.Group{}, fmt.Errorf("decode group %s: %w", r.ID, err)
	}
	return model.Group{
		ID:        r.ID,
		Name:      r.Name,
		Type:      r.Type,
		Proxies:   []string(r.Proxies),
		Config:    cfg,
		Source:    r.Source,
		Priority:  r.Priority,
		CreatedAt: r.CreatedAt,
	}, nil
}

func toRuleRow(r model.Rule) *RuleRow {
	return &RuleRow{
		ID:        newID(r.ID),
		Text:      r.Text,
		Priority:  r.Priority,
		Source:    r.Source,
		CreatedAt: createdAt(r.CreatedAt),
	}
}

func (r *RuleRow) toModel() model.Rule {
	return model.Rule{
		ID:        r.ID,
		Text:      r.Text,
		Priority:  r.Priority,
		Source:    r.Source,
		CreatedAt: r.CreatedAt,
	}
}

func (r *SubscriptionRow) toModel() *model.Subscription {
	return &model.Subscription{
		Token:           r.Token,
		Username:        r.Username,
		Remark:          r.Remark,
		SelectedSources: []string(r.SelectedSources),
		GroupID:         r.GroupID,
		RuleID:          r.RuleID,
		CustomRules:     r.CustomRules,
		Enabled:         r.Enabled,
		CreatedAt:       r.CreatedAt,
	}
}

func encodeYAML(v any) (string, error) {
	b, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeYAML(s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(s), &n); err != nil {
		return nil, err
	}
	return model.DecodeNode(&n)
}

func decodeFields(s string) (model.Fields, error) {
	v, err := decodeYAML(s)
	if err != nil {
		return nil, err
	}
	switch f := v.(type) {
	case nil:
		return model.Fields{}, nil
	case model.Fields:
		return f, nil
	default:
		return nil, fmt.Errorf("expected a mapping, got %T", v)
	}
}
