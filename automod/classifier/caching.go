package classifier

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bluesky-social/guildmod/automod/cachestore"
	"github.com/bluesky-social/guildmod/automod/helpers"
	"github.com/bluesky-social/guildmod/automod/keyword"
)

var (
	DefaultThreshold = 0.8
	DefaultTimeout   = 5 * time.Second
)

const verdictCacheName = "classifier-verdict"

// Wraps a Classifier with a verdict cache keyed by content fingerprint, a hard timeout, and a confidence threshold.
//
// Raw verdicts are cached; the threshold is applied on the way out, so a verdict below Threshold is reported as not a violation.
type CachingClassifier struct {
	Inner     Classifier
	Cache     cachestore.CacheStore
	Threshold float64
	Timeout   time.Duration
	Logger    *slog.Logger
}

var _ Classifier = (*CachingClassifier)(nil)

func NewCachingClassifier(inner Classifier, cache cachestore.CacheStore) *CachingClassifier {
	return &CachingClassifier{
		Inner:     inner,
		Cache:     cache,
		Threshold: DefaultThreshold,
		Timeout:   DefaultTimeout,
		Logger:    slog.Default().With("component", "classifier"),
	}
}

// Hash of the tokenized text, so messages differing only in case, punctuation, spacing or diacritics share a cached verdict.
func Fingerprint(text string) string {
	return helpers.HashOfString(strings.Join(keyword.TokenizeText(text), " "))
}

func (c *CachingClassifier) Analyze(ctx context.Context, text string, subj Subject) (*Verdict, error) {
	key := Fingerprint(text)

	if c.Cache != nil {
		v, ok, err := cachestore.GetJSON[Verdict](ctx, c.Cache, verdictCacheName, key)
		if err != nil {
			c.Logger.Warn("verdict cache read failed", "err", err)
		} else if ok {
			classifierCacheCount.WithLabelValues("hit").Inc()
			return c.apply(*v), nil
		}
		classifierCacheCount.WithLabelValues("miss").Inc()
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := c.Inner.Analyze(tctx, text, subj)
	if err != nil {
		return nil, err
	}

	if c.Cache != nil {
		if err := cachestore.SetJSON(ctx, c.Cache, verdictCacheName, key, v); err != nil {
			c.Logger.Warn("verdict cache write failed", "err", err)
		}
	}
	return c.apply(*v), nil
}

func (c *CachingClassifier) apply(v Verdict) *Verdict {
	threshold := c.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if v.IsFalsePositive || v.Confidence < threshold {
		v.IsViolation = false
	}
	return &v
}
