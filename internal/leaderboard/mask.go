package leaderboard

import "strings"

// maskSuffixLen is how many trailing characters stay visible when an
// owner opted into identifier hiding.
const maskSuffixLen = 3

// MaskKey renders an account key for publication. Hidden keys keep only
// a fixed-length suffix; everything before it is padded with '*' so the
// published length matches the original.
func MaskKey(accountKey string, hide bool) string {
	if !hide {
		return accountKey
	}
	if len(accountKey) <= maskSuffixLen {
		return strings.Repeat("*", len(accountKey))
	}
	return strings.Repeat("*", len(accountKey)-maskSuffixLen) + accountKey[len(accountKey)-maskSuffixLen:]
}
