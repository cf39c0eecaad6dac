package model

// ConfigItem is a top-level document key other than proxies/proxy-groups/rules
// (dns, tun, experimental, ...), captured verbatim per source.
type ConfigItem struct {
	Key    string
	Value  any
	Source string
}
