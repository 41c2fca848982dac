package remote

import (
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
)

// Pool spreads requests across backend base URLs using atomic round-robin
// selection.
type Pool struct {
	endpoints []string
	counter   atomic.Uint64
}

// NewPool validates and normalises the base URLs. At least one is required.
func NewPool(endpoints []string) (*Pool, error) {
	var clean []string
	for _, e := range endpoints {
		e = strings.TrimRight(strings.TrimSpace(e), "/")
		if e == "" {
			continue
		}
		u, err := url.Parse(e)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("remote: invalid endpoint %q", e)
		}
		clean = append(clean, e)
	}
	if len(clean) == 0 {
		return nil, fmt.Errorf("remote: at least one endpoint is required")
	}
	return &Pool{endpoints: clean}, nil
}

// Next returns the next base URL. Safe for concurrent use.
func (p *Pool) Next() string {
	idx := p.counter.Add(1) - 1
	return p.endpoints[idx%uint64(len(p.endpoints))]
}

// Len returns the number of endpoints.
func (p *Pool) Len() int { return len(p.endpoints) }
