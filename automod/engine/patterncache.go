package engine

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

var DefaultRegexFlags = "i"

type compiledPattern struct {
	re  *regexp.Regexp
	err error
}

// LRU of compiled regular expressions, keyed by (flags, pattern). Compile failures are cached too.
//
// A nil *PatternCache compiles on every call.
type PatternCache struct {
	cache *lru.Cache[string, compiledPattern]
}

func NewPatternCache(size int) *PatternCache {
	c, err := lru.New[string, compiledPattern](size)
	if err != nil {
		// only fails for non-positive size
		c, _ = lru.New[string, compiledPattern](1024)
	}
	return &PatternCache{cache: c}
}

func (pc *PatternCache) Get(pattern, flags string) (*regexp.Regexp, error) {
	if pc == nil {
		return CompilePattern(pattern, flags)
	}
	key := flags + "\x00" + pattern
	if v, ok := pc.cache.Get(key); ok {
		return v.re, v.err
	}
	re, err := CompilePattern(pattern, flags)
	pc.cache.Add(key, compiledPattern{re: re, err: err})
	return re, err
}

// Compiles pattern with single-letter flags: "i" (case-insensitive), "m" (multi-line), "s" (dot matches newline). "g", "u" and "y" are accepted and have no effect. Empty flags mean DefaultRegexFlags.
func CompilePattern(pattern, flags string) (*regexp.Regexp, error) {
	if flags == "" {
		flags = DefaultRegexFlags
	}
	var inline strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(inline.String(), f) {
				inline.WriteRune(f)
			}
		case 'g', 'u', 'y':
		default:
			return nil, fmt.Errorf("unsupported regex flag: %q", f)
		}
	}
	if inline.Len() > 0 {
		pattern = "(?" + inline.String() + ")" + pattern
	}
	return regexp.Compile(pattern)
}
