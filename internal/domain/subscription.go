package domain

import "strings"

// Tier is a subscription tier name
type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
	TierMax  Tier = "max"
)

// NormalizeTier lowercases and trims a stored tier; empty means free
func NormalizeTier(raw string) Tier {
	t := strings.ToLower(strings.TrimSpace(raw))
	if t == "" {
		return TierFree
	}
	return Tier(t)
}
