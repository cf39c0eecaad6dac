package model

import "time"

// Rule is a single rule line, e.g. "DOMAIN-SUFFIX,x.com,Proxy".
type Rule struct {
	ID        string
	Text      string
	Priority  int // index in the source document's rules list
	Source    string
	CreatedAt time.Time
}
