package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsAgent evaluates robots.txt rules, fetching each host's file once
// per crawl.
type robotsAgent struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

func newRobotsAgent(client *http.Client, userAgent string, timeout time.Duration) *robotsAgent {
	if client == nil {
		client = http.DefaultClient
	}
	return &robotsAgent{
		client:    client,
		userAgent: userAgent,
		timeout:   timeout,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// allowed reports whether target may be fetched. Missing or broken
// robots.txt files allow everything.
func (a *robotsAgent) allowed(ctx context.Context, target *url.URL) bool {
	rules, err := a.rules(ctx, target)
	if err != nil {
		return true
	}

	group := rules.FindGroup(a.userAgent)
	if group == nil {
		return true
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (a *robotsAgent) rules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	// Held across the fetch so concurrent workers wait for one download
	a.mu.Lock()
	defer a.mu.Unlock()

	if data, ok := a.cache[host]; ok {
		if data == nil {
			return nil, fmt.Errorf("robots.txt unavailable for %s", host)
		}
		return data, nil
	}

	data, err := a.fetch(ctx, target.Scheme+"://"+target.Host+"/robots.txt")
	if err != nil && ctx.Err() != nil {
		// Do not cache a failure caused by cancellation
		return nil, err
	}
	a.cache[host] = data
	return data, err
}

func (a *robotsAgent) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}
