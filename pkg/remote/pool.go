package remote

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Pool errors.
var (
	ErrNoHealthyEndpoints = errors.New("no healthy endpoints available")
	ErrNoEndpoints        = errors.New("pool needs at least one endpoint")
)

// Default pool configuration values.
const (
	DefaultFailThreshold = 1
	DefaultRetryAfter    = 30 * time.Second
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	Endpoints []ClientConfig

	// FailThreshold is the number of consecutive transport failures after
	// which an endpoint is skipped.
	FailThreshold int

	// RetryAfter is how long an unhealthy endpoint is skipped before it
	// gets another request.
	RetryAfter time.Duration

	// OnHealthChange, if set, is called when an endpoint changes state.
	OnHealthChange func(endpoint string, healthy bool)
}

// DefaultPoolConfig returns a pool configuration for the given addresses.
func DefaultPoolConfig(endpoints ...string) PoolConfig {
	config := PoolConfig{
		FailThreshold: DefaultFailThreshold,
		RetryAfter:    DefaultRetryAfter,
	}
	for _, e := range endpoints {
		config.Endpoints = append(config.Endpoints, DefaultClientConfig(e))
	}
	return config
}

type endpointState struct {
	client    *Client
	healthy   atomic.Bool
	failCount atomic.Int32
	lastFail  atomic.Int64 // Unix nano timestamp
}

// Pool spreads runs over several servers round robin. An endpoint failing
// at the transport level is skipped until RetryAfter has passed and the
// run moves on to the next endpoint.
type Pool struct {
	config    PoolConfig
	endpoints []*endpointState
	nextIndex atomic.Uint64
	closed    atomic.Bool

	now func() time.Time
}

// NewPool dials every endpoint. Extra options are applied to each dial.
func NewPool(config PoolConfig, extra ...grpc.DialOption) (*Pool, error) {
	if len(config.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if config.FailThreshold <= 0 {
		config.FailThreshold = DefaultFailThreshold
	}
	if config.RetryAfter <= 0 {
		config.RetryAfter = DefaultRetryAfter
	}

	p := &Pool{config: config, now: time.Now}
	for _, ec := range config.Endpoints {
		client, err := Dial(ec, extra...)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("%s: %w", ec.Endpoint, err)
		}
		ep := &endpointState{client: client}
		ep.healthy.Store(true)
		p.endpoints = append(p.endpoints, ep)
	}
	return p, nil
}

// available reports whether ep may take the next request.
func (p *Pool) available(ep *endpointState) bool {
	if ep.healthy.Load() {
		return true
	}
	return p.now().Sub(time.Unix(0, ep.lastFail.Load())) >= p.config.RetryAfter
}

// Run executes req on the next available endpoint, moving on to the
// following one when the transport fails. Errors raised by a server that
// answered are returned as is.
func (p *Pool) Run(ctx context.Context, req *RunRequest) (*RunResponse, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	start := p.nextIndex.Add(1) - 1
	var lastErr error
	for i := range p.endpoints {
		ep := p.endpoints[(start+uint64(i))%uint64(len(p.endpoints))]
		if !p.available(ep) {
			continue
		}

		resp, err := ep.client.Run(ctx, req)
		if err == nil || !transportFailure(err) {
			if err == nil {
				p.markSuccess(ep)
			}
			return resp, err
		}
		p.markFailure(ep)
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoHealthyEndpoints, lastErr)
	}
	return nil, ErrNoHealthyEndpoints
}

func transportFailure(err error) bool {
	return status.Code(err) == codes.Unavailable
}

func (p *Pool) markSuccess(ep *endpointState) {
	ep.failCount.Store(0)
	if !ep.healthy.Swap(true) && p.config.OnHealthChange != nil {
		p.config.OnHealthChange(ep.client.config.Endpoint, true)
	}
}

func (p *Pool) markFailure(ep *endpointState) {
	ep.lastFail.Store(p.now().UnixNano())
	if ep.failCount.Add(1) < int32(p.config.FailThreshold) {
		return
	}
	if ep.healthy.Swap(false) && p.config.OnHealthChange != nil {
		p.config.OnHealthChange(ep.client.config.Endpoint, false)
	}
}

// EndpointInfo describes one endpoint of the pool.
type EndpointInfo struct {
	Endpoint  string
	Healthy   bool
	FailCount int
}

// EndpointStatus returns the state of every endpoint.
func (p *Pool) EndpointStatus() []EndpointInfo {
	out := make([]EndpointInfo, len(p.endpoints))
	for i, ep := range p.endpoints {
		out[i] = EndpointInfo{
			Endpoint:  ep.client.config.Endpoint,
			Healthy:   ep.healthy.Load(),
			FailCount: int(ep.failCount.Load()),
		}
	}
	return out
}

// HealthyCount returns the number of healthy endpoints.
func (p *Pool) HealthyCount() int {
	n := 0
	for _, ep := range p.endpoints {
		if ep.healthy.Load() {
			n++
		}
	}
	return n
}

// Close closes every connection.
func (p *Pool) Close() error {
	if p.closed.Swap(true) {
		return ErrClosed
	}
	var firstErr error
	for _, ep := range p.endpoints {
		if err := ep.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
