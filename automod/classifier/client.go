package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bluesky-social/guildmod/util"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

// Client for a remote text classification service, which accepts a JSON analyze request and responds with a Verdict.
type HTTPClient struct {
	Client  *http.Client
	Host    string
	Token   string
	Limiter *rate.Limiter
}

var _ Classifier = (*HTTPClient)(nil)

type analyzeRequest struct {
	Text string `json:"text"`
	Subject
}

// ratePerSec of zero disables client-side rate limiting.
func NewHTTPClient(host, token string, ratePerSec float64) *HTTPClient {
	c := &HTTPClient{
		Client: util.RobustHTTPClient(),
		Host:   strings.TrimSuffix(host, "/"),
		Token:  token,
	}
	if ratePerSec > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(ratePerSec), max(1, int(ratePerSec)))
	}
	return c
}

func (c *HTTPClient) Analyze(ctx context.Context, text string, subj Subject) (*Verdict, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("classifier rate limit: %w", err)
		}
	}

	body, err := json.Marshal(analyzeRequest{Text: text, Subject: subj})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.Host+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		classifierAPIDuration.Observe(time.Since(start).Seconds())
	}()

	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "guildmod/"+versioninfo.Short())

	res, err := c.Client.Do(req)
	if err != nil {
		classifierAPICount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer res.Body.Close()

	classifierAPICount.WithLabelValues(fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier request failed statusCode=%d", res.StatusCode)
	}

	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read classifier resp body: %w", err)
	}
	var v Verdict
	if err := json.Unmarshal(respBytes, &v); err != nil {
		return nil, fmt.Errorf("failed to parse classifier resp JSON: %w", err)
	}
	slog.Debug("classifier response", "guild", subj.GuildID, "violation", v.IsViolation, "type", v.ViolationType, "confidence", v.Confidence)
	return &v, nil
}
