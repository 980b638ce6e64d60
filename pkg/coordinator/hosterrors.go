package coordinator

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// hostErrorCache tracks hosts whose classification calls keep failing so the
// coordinator stops burning concurrency slots on them. Entries expire so a
// recovered host gets scanned again.
type hostErrorCache struct {
	mu        sync.Mutex
	hosts     map[string]*hostState
	maxErrors int
	expiry    time.Duration
}

type hostState struct {
	count    int
	markedAt time.Time
}

func newHostErrorCache(maxErrors int, expiry time.Duration) *hostErrorCache {
	return &hostErrorCache{
		hosts:     make(map[string]*hostState),
		maxErrors: maxErrors,
		expiry:    expiry,
	}
}

// denied reports whether host has accumulated enough failures to be skipped.
func (c *hostErrorCache) denied(host string) bool {
	if host == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.hosts[host]
	if !ok {
		return false
	}
	if st.count >= c.maxErrors && time.Since(st.markedAt) > c.expiry {
		delete(c.hosts, host)
		return false
	}
	return st.count >= c.maxErrors
}

// mark records one failure for host and reports whether the host just
// crossed the denylist threshold.
func (c *hostErrorCache) mark(host string) bool {
	if host == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.hosts[host]
	if !ok {
		st = &hostState{}
		c.hosts[host] = st
	}
	st.count++
	st.markedAt = time.Now()
	return st.count == c.maxErrors
}

// clear forgets failures for host, called after a successful scan.
func (c *hostErrorCache) clear(host string) {
	if host == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hosts, host)
}

// registrableHost reduces a URL to its registrable domain so failures group
// per site, not per subdomain. Falls back to the bare hostname when the
// public suffix list cannot help (IPs, localhost).
func registrableHost(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if registrable, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return registrable
	}
	return host
}
