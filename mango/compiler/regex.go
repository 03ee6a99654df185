package compiler

import (
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
)

// regexCache memoizes compiled $regex patterns. Invalid patterns are cached as
// nil so they are rejected without recompiling.
type regexCache struct {
	entries *lru.Cache[string, *regexp.Regexp]
}

func newRegexCache(size int) *regexCache {
	if size <= 0 {
		size = DefaultOptions().RegexCacheSize
	}
	entries, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &regexCache{entries: entries}
}

// get returns the compiled pattern, or nil when it does not compile.
func (c *regexCache) get(pattern string) *regexp.Regexp {
	if re, ok := c.entries.Get(pattern); ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = nil
	}
	c.entries.Add(pattern, re)
	return re
}
