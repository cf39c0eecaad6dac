package model

import "time"

// DefaultSetID selects source-derived groups/rules instead of a custom set.
const DefaultSetID = "default"

// Subscription is a user's composition request. Its lifecycle belongs to the
// CRUD layer; this module only reads it.
type Subscription struct {
	Token    string
	Username string
	Remark   string

	// SelectedSources limits proxies/groups/rules to these sources.
	// Empty means every source.
	SelectedSources []string

	GroupID string // custom group set id, "" or DefaultSetID for none
	RuleID  string // custom rule set id, "" or DefaultSetID for none

	// CustomRules is raw multi-line text; its rules always come first.
	CustomRules string

	Enabled   bool
	CreatedAt time.Time
}

// UsesCustomGroups reports whether GroupID points at a custom group set.
func (s Subscription) UsesCustomGroups() bool {
	return s.GroupID != "" && s.GroupID != DefaultSetID
}

// UsesCustomRules reports whether RuleID points at a custom rule set.
func (s Subscription) UsesCustomRules() bool {
	return s.RuleID != "" && s.RuleID != DefaultSetID
}

// CustomSet is an admin-authored YAML fragment: a list of proxy groups or a
// list of rule strings.
type CustomSet struct {
	ID      string
	Name    string
	Content string
}
