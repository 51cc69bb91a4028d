package sdmx

import (
	"context"
	"sync"
	"time"

	"github.com/seenimoa/macroquery/internal/infra"
)

// Accept headers for the two response formats SDMX services negotiate.
const (
	AcceptDataJSON      = "application/vnd.sdmx.data+json"
	AcceptStructureJSON = "application/vnd.sdmx.structure+json"
)

// dsdTTL keeps structure definitions around for a day; DSDs change on
// the order of dataset releases, not requests.
const dsdTTL = 24 * time.Hour

type dsdEntry struct {
	dsd       *DSD
	expiresAt time.Time
}

// Client fetches and decodes SDMX messages for one provider through the
// shared HTTP pool. Structure definitions are cached per URL.
type Client struct {
	pool         *infra.Pool
	providerName string

	mu        sync.Mutex
	dsdCache  map[string]dsdEntry
	flowCache map[string][]Dataflow
}

// NewClient creates a client attributed to the given provider tag.
func NewClient(pool *infra.Pool, providerName string) *Client {
	return &Client{
		pool:         pool,
		providerName: providerName,
		dsdCache:     make(map[string]dsdEntry),
		flowCache:    make(map[string][]Dataflow),
	}
}

// Data fetches a data URL and decodes the SDMX-JSON message.
func (c *Client) Data(ctx context.Context, url string) ([]Series, error) {
	resp, err := c.pool.Get(ctx, c.providerName, url, map[string]string{"Accept": AcceptDataJSON})
	if err != nil {
		return nil, err
	}
	if err := infra.ClassifyStatus(c.providerName, resp); err != nil {
		return nil, err
	}
	return DecodeDataMessage(resp.Body)
}

// JSONStat fetches a URL serving a JSON-stat 2.0 dataset (the Eurostat
// statistics endpoint) and decodes it.
func (c *Client) JSONStat(ctx context.Context, url string) ([]Series, error) {
	resp, err := c.pool.Get(ctx, c.providerName, url, nil)
	if err != nil {
		return nil, err
	}
	if err := infra.ClassifyStatus(c.providerName, resp); err != nil {
		return nil, err
	}
	return DecodeJSONStat(resp.Body)
}

// DSD fetches and caches the data structure definition at url.
func (c *Client) DSD(ctx context.Context, url string) (*DSD, error) {
	c.mu.Lock()
	if e, ok := c.dsdCache[url]; ok && time.Now().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.dsd, nil
	}
	c.mu.Unlock()

	resp, err := c.pool.Get(ctx, c.providerName, url, map[string]string{"Accept": AcceptStructureJSON})
	if err != nil {
		return nil, err
	}
	if err := infra.ClassifyStatus(c.providerName, resp); err != nil {
		return nil, err
	}
	dsd, err := DecodeDSD(resp.Body)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.dsdCache[url] = dsdEntry{dsd: dsd, expiresAt: time.Now().Add(dsdTTL)}
	c.mu.Unlock()
	return dsd, nil
}

// Dataflows fetches and caches the dataflow catalog at url. The catalog
// is static for the life of the process.
func (c *Client) Dataflows(ctx context.Context, url string) ([]Dataflow, error) {
	c.mu.Lock()
	if flows, ok := c.flowCache[url]; ok {
		c.mu.Unlock()
		return flows, nil
	}
	c.mu.Unlock()

	resp, err := c.pool.Get(ctx, c.providerName, url, map[string]string{"Accept": AcceptStructureJSON})
	if err != nil {
		return nil, err
	}
	if err := infra.ClassifyStatus(c.providerName, resp); err != nil {
		return nil, err
	}
	flows, err := DecodeDataflows(resp.Body)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.flowCache[url] = flows
	c.mu.Unlock()
	return flows, nil
}
