package gateway

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Belphemur/watchmirror/internal/apperrors"
	"github.com/Belphemur/watchmirror/internal/metrics"
)

// Result is the outcome of an executed call. The body is fully read and the
// connection released before the result is handed back.
type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

type callResult struct {
	result *Result
	err    error
}

type call struct {
	ctx      context.Context
	req      *http.Request
	class    Class
	attempts int
	res      chan callResult
}

func (c *call) deliver(r *Result, err error) {
	c.res <- callResult{result: r, err: err}
}

// Options configures a Gateway.
type Options struct {
	// Client is the HTTP client used for all outbound calls. Required.
	Client *http.Client

	Read   ClassLimit
	Mutate ClassLimit

	// QuotaBackoff handles 429 responses, ServerBackoff handles 5xx.
	QuotaBackoff  BackoffPolicy
	ServerBackoff BackoffPolicy

	// QueueSize bounds the pending-call queue. Defaults to 256.
	QueueSize int

	Logger zerolog.Logger
}

// Gateway serializes every outbound call to the remote service through one
// FIFO queue drained by a single worker. It is the sole admission-control
// point: at most one call is in flight at any time, minimum spacing and the
// per-class sliding-window quota are enforced before each call, and 429/5xx
// responses are requeued at the head of the queue with a policy-driven delay.
type Gateway struct {
	client *http.Client
	queue  chan *call
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	quota  BackoffPolicy
	server BackoffPolicy

	mu      sync.Mutex
	classes map[Class]*classWindow

	depth atomic.Int64
	log   zerolog.Logger
}

// New creates a Gateway and starts its drain worker.
func New(opts Options) *Gateway {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Read == (ClassLimit{}) {
		opts.Read = DefaultReadLimit
	}
	if opts.Mutate == (ClassLimit{}) {
		opts.Mutate = DefaultMutateLimit
	}
	if opts.QuotaBackoff == (BackoffPolicy{}) {
		opts.QuotaBackoff = DefaultQuotaBackoff
	}
	if opts.ServerBackoff == (BackoffPolicy{}) {
		opts.ServerBackoff = DefaultServerBackoff
	}

	g := &Gateway{
		client: opts.Client,
		queue:  make(chan *call, opts.QueueSize),
		done:   make(chan struct{}),
		quota:  opts.QuotaBackoff,
		server: opts.ServerBackoff,
		classes: map[Class]*classWindow{
			ClassRead:   newClassWindow(opts.Read),
			ClassMutate: newClassWindow(opts.Mutate),
		},
		log: opts.Logger,
	}
	g.wg.Add(1)
	go g.run()
	return g
}

// Execute queues req under the given quota class and blocks until the call
// has run, its retries are exhausted, or ctx is cancelled. Retryable failures
// (429, 5xx) are invisible to the caller; any other HTTP status comes back as
// a Result for the caller to interpret.
func (g *Gateway) Execute(ctx context.Context, class Class, req *http.Request) (*Result, error) {
	c := &call{ctx: ctx, req: req, class: class, res: make(chan callResult, 1)}

	select {
	case <-g.done:
		return nil, &apperrors.ErrGatewayClosed{}
	default:
	}

	select {
	case g.queue <- c:
		metrics.GatewayQueueDepth.Set(float64(g.depth.Add(1)))
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-g.done:
		return nil, &apperrors.ErrGatewayClosed{}
	}

	select {
	case r := <-c.res:
		return r.result, r.err
	case <-ctx.Done():
		// The worker notices the dead context when it reaches the call.
		return nil, ctx.Err()
	}
}

// Close stops the drain worker. Calls still in the queue receive
// ErrGatewayClosed.
func (g *Gateway) Close() {
	g.once.Do(func() { close(g.done) })
	g.wg.Wait()

	for {
		select {
		case c := <-g.queue:
			g.finish(c, nil, &apperrors.ErrGatewayClosed{})
		default:
			return
		}
	}
}

// ClassStats is the live usage of one quota class.
type ClassStats struct {
	Used   int           `json:"used"`
	Limit  int           `json:"limit"`
	Window time.Duration `json:"window"`
}

// Stats reports current quota usage and queue depth.
type Stats struct {
	Read       ClassStats `json:"read"`
	Mutate     ClassStats `json:"mutate"`
	QueueDepth int        `json:"queueDepth"`
}

// Stats returns a snapshot of the gateway's live state.
func (g *Gateway) Stats() Stats {
	now := time.Now()
	g.mu.Lock()
	defer g.mu.Unlock()

	read := g.classes[ClassRead]
	mutate := g.classes[ClassMutate]
	return Stats{
		Read:       ClassStats{Used: read.used(now), Limit: read.limit, Window: read.window},
		Mutate:     ClassStats{Used: mutate.used(now), Limit: mutate.limit, Window: mutate.window},
		QueueDepth: int(g.depth.Load()),
	}
}

// run is the single drain loop. A requeued call occupies the head slot and
// runs before anything still in the channel, preserving FIFO order for the
// rest of the queue.
func (g *Gateway) run() {
	defer g.wg.Done()

	var head *call
	for {
		c := head
		head = nil
		if c == nil {
			select {
			case c = <-g.queue:
			case <-g.done:
				return
			}
		}

		if c.ctx.Err() != nil {
			g.finish(c, nil, c.ctx.Err())
			continue
		}

		if wait := g.waitFor(c.class); wait > 0 {
			if !g.pause(wait) {
				g.finish(c, nil, &apperrors.ErrGatewayClosed{})
				return
			}
		}
		if c.ctx.Err() != nil {
			g.finish(c, nil, c.ctx.Err())
			continue
		}

		res, err := g.attempt(c)
		if err != nil {
			// Transport-level failure: reject to the caller, never retry.
			metrics.GatewayRequestsTotal.WithLabelValues(string(c.class), "error").Inc()
			g.finish(c, nil, err)
			continue
		}

		switch {
		case res.Status == http.StatusTooManyRequests:
			head = g.requeue(c, res, g.quota, "quota")
		case res.Status >= 500:
			head = g.requeue(c, res, g.server, "server")
		default:
			metrics.GatewayRequestsTotal.WithLabelValues(string(c.class), strconv.Itoa(res.Status)).Inc()
			g.finish(c, res, nil)
		}
	}
}

// requeue puts the call back at the head of the queue and sleeps out the
// policy delay, unless the policy's attempts are exhausted.
func (g *Gateway) requeue(c *call, res *Result, policy BackoffPolicy, reason string) *call {
	c.attempts++
	metrics.GatewayRetriesTotal.WithLabelValues(reason).Inc()

	if c.attempts >= policy.MaxAttempts {
		g.log.Warn().
			Str("class", string(c.class)).
			Str("reason", reason).
			Int("attempts", c.attempts).
			Msg("Retries exhausted, rejecting call")
		g.finish(c, nil, &apperrors.ErrRetriesExhausted{Attempts: c.attempts, LastStatus: res.Status})
		return nil
	}

	delay := policy.Delay(res.Header)
	g.log.Info().
		Str("class", string(c.class)).
		Str("reason", reason).
		Int("status", res.Status).
		Dur("delay", delay).
		Int("attempt", c.attempts).
		Msg("Requeueing call after retryable failure")

	if !g.pause(delay) {
		g.finish(c, nil, &apperrors.ErrGatewayClosed{})
		return nil
	}
	return c
}

// attempt executes one HTTP round trip for the call, counting it against the
// class quota whatever the outcome.
func (g *Gateway) attempt(c *call) (*Result, error) {
	now := time.Now()
	g.mu.Lock()
	w := g.classes[c.class]
	w.record(now)
	metrics.GatewayWindowUsed.WithLabelValues(string(c.class)).Set(float64(w.used(now)))
	g.mu.Unlock()

	req := c.req.Clone(c.ctx)
	if c.req.GetBody != nil {
		body, err := c.req.GetBody()
		if err != nil {
			return nil, err
		}
		req.Body = body
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Result{Status: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// waitFor computes the admission delay for the next call of the given class.
func (g *Gateway) waitFor(class Class) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.classes[class].waitTime(time.Now())
}

func (g *Gateway) finish(c *call, res *Result, err error) {
	metrics.GatewayQueueDepth.Set(float64(g.depth.Add(-1)))
	c.deliver(res, err)
}

// pause sleeps for d unless the gateway is closed first.
func (g *Gateway) pause(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-g.done:
		return false
	}
}
