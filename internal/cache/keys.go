package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"
)

// All gateway keys live under one application prefix so the Redis instance
// can be shared with other tenants. The set of keys that must be
// co-invalidated for a given write is defined here, once.
const appPrefix = "mkt:"

func UserKey(userID string) string {
	return appPrefix + "user:" + userID
}

func AppKey(appID string) string {
	return appPrefix + "app:" + appID
}

func AppListKey(category string, page int) string {
	return fmt.Sprintf("%sapps:list:%s:%d", appPrefix, category, page)
}

// AppListPattern matches every cached listing page.
func AppListPattern() string {
	return appPrefix + "apps:list:*"
}

// SearchKey normalizes the query and hashes it so arbitrary user input never
// lands verbatim in a key.
func SearchKey(query string) string {
	return appPrefix + "search:" + hashQuery(query)
}

func SearchPattern() string {
	return appPrefix + "search:*"
}

func SessionKey(sessionID string) string {
	return appPrefix + "session:" + sessionID
}

func AnalyticsKey(metric, period string) string {
	return appPrefix + "analytics:" + metric + ":" + period
}

func RateLimitKey(identifier string) string {
	return appPrefix + "rate_limit:" + identifier
}

// NormalizeQuery lowercases and collapses whitespace so that trivially
// different spellings of one query share a cache entry.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func hashQuery(query string) string {
	h := murmur3.Sum64([]byte(NormalizeQuery(query)))
	return strconv.FormatUint(h, 16)
}
