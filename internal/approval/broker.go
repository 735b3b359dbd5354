package approval

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// pendingRequest holds the state for a pending approval request.
type pendingRequest struct {
	request *Request
	done    chan Decision
	timer   *time.Timer
}

// resolvedEntry remembers an effective resolution so that late duplicate
// Resolve calls can be distinguished from ids that never existed. Entries
// are pruned once the original deadline is well past.
type resolvedEntry struct {
	decision Decision
	purgeAt  time.Time
}

// Broker is the process-wide registry of pending approval requests. A turn
// registers a request and suspends in AwaitDecision; whichever channel calls
// Resolve first wins. The deadline timer synthesizes a timeout decision so
// the absence of a human is never interpreted as permission.
type Broker struct {
	mu       sync.Mutex
	pending  map[string]*pendingRequest
	resolved map[string]resolvedEntry
	closed   bool

	notifier Notifier
	audit    AuditSink
	logger   zerolog.Logger

	timeout    time.Duration
	maxPending int
}

// BrokerConfig configures the Broker.
type BrokerConfig struct {
	Notifier   Notifier
	Audit      AuditSink
	Timeout    time.Duration
	MaxPending int
}

// NewBroker creates a new Broker.
func NewBroker(config *BrokerConfig, logger zerolog.Logger) *Broker {
	timeout := 2 * time.Minute
	maxPending := 100

	if config != nil {
		if config.Timeout > 0 {
			timeout = config.Timeout
		}
		if config.MaxPending > 0 {
			maxPending = config.MaxPending
		}
	}

	b := &Broker{
		pending:    make(map[string]*pendingRequest),
		resolved:   make(map[string]resolvedEntry),
		logger:     logger,
		timeout:    timeout,
		maxPending: maxPending,
	}

	if config != nil {
		b.notifier = config.Notifier
		b.audit = config.Audit
	}

	return b
}

// Timeout returns the configured approval deadline duration.
func (b *Broker) Timeout() time.Duration {
	return b.timeout
}

// Register stores the request, starts its deadline timer and returns the
// generated id. Fails with ErrBrokerClosed during shutdown and
// ErrDuplicateID on an id collision (fatal invariant violation).
func (b *Broker) Register(req *Request) (string, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	now := time.Now()
	req.CreatedAt = now
	req.ExpiresAt = now.Add(b.timeout)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", ErrBrokerClosed
	}
	if len(b.pending) >= b.maxPending {
		b.mu.Unlock()
		return "", ErrMaxPendingExceeded
	}
	if _, exists := b.pending[req.ID]; exists {
		b.mu.Unlock()
		return "", ErrDuplicateID
	}
	if _, exists := b.resolved[req.ID]; exists {
		b.mu.Unlock()
		return "", ErrDuplicateID
	}

	pr := &pendingRequest{
		request: req,
		done:    make(chan Decision, 1),
	}
	pr.timer = time.AfterFunc(b.timeout, func() {
		b.handleTimeout(req.ID)
	})
	b.pending[req.ID] = pr
	b.pruneResolvedLocked(now)
	b.mu.Unlock()

	b.logger.Info().
		Str("request_id", req.ID).
		Str("tool", req.Tool).
		Str("risk", string(req.Risk)).
		Str("session_id", req.SessionID).
		Msg("approval request registered")

	if b.notifier != nil {
		if err := b.notifier.NotifyRequest(req); err != nil {
			b.logger.Warn().Err(err).Str("request_id", req.ID).Msg("failed to send approval notification")
		}
	}

	return req.ID, nil
}

// AwaitDecision suspends the calling turn until the request is resolved or
// its deadline elapses. The wait is scoped to this single request; other
// turns make progress independently. If ctx is cancelled the request stays
// pending until its deadline — a decision arriving later simply finds no
// listener.
func (b *Broker) AwaitDecision(ctx context.Context, id string) (Decision, error) {
	b.mu.Lock()
	pr, ok := b.pending[id]
	if !ok {
		if entry, ok := b.resolved[id]; ok {
			b.mu.Unlock()
			return entry.decision, nil
		}
		b.mu.Unlock()
		return "", ErrRequestNotFound
	}
	b.mu.Unlock()

	select {
	case decision := <-pr.done:
		return decision, nil
	case <-ctx.Done():
		return DecisionRejected, ctx.Err()
	}
}

// Resolve delivers a decision to the request's waiting turn. The first
// successful call wins; concurrent or late calls are benign no-ops reported
// as AlreadyResolved. NotFound covers ids that never existed or already
// timed out and were purged.
func (b *Broker) Resolve(id string, decision Decision) ResolveStatus {
	b.mu.Lock()
	pr, ok := b.pending[id]
	if !ok {
		if _, resolved := b.resolved[id]; resolved {
			b.mu.Unlock()
			b.logger.Debug().Str("request_id", id).Msg("late resolve ignored, already resolved")
			return AlreadyResolved
		}
		b.mu.Unlock()
		b.logger.Debug().Str("request_id", id).Msg("resolve for unknown or purged request")
		return NotFound
	}

	if pr.timer != nil {
		pr.timer.Stop()
	}
	delete(b.pending, id)
	b.resolved[id] = resolvedEntry{
		decision: decision,
		purgeAt:  pr.request.ExpiresAt.Add(b.timeout),
	}
	b.mu.Unlock()

	b.finishResolution(pr, decision)
	return Resolved
}

// handleTimeout synthesizes a timeout decision when the deadline elapses.
// Timed-out ids are purged outright: a channel posting afterwards gets
// NotFound and never re-triggers execution.
func (b *Broker) handleTimeout(id string) {
	b.mu.Lock()
	pr, ok := b.pending[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.pending, id)
	b.mu.Unlock()

	b.logger.Warn().
		Str("request_id", id).
		Str("tool", pr.request.Tool).
		Msg("approval request timed out")

	b.finishResolution(pr, DecisionTimeout)
}

// finishResolution records the audit row, notifies UIs and wakes the
// awaiting turn. Audit failures are logged, never propagated.
func (b *Broker) finishResolution(pr *pendingRequest, decision Decision) {
	now := time.Now()

	b.logger.Info().
		Str("request_id", pr.request.ID).
		Str("tool", pr.request.Tool).
		Str("decision", string(decision)).
		Msg("approval request resolved")

	if b.audit != nil {
		res := &Resolution{
			Request:   pr.request,
			Decision:  decision,
			DecidedAt: now,
			Latency:   now.Sub(pr.request.CreatedAt),
		}
		if err := b.audit.RecordResolution(res); err != nil {
			b.logger.Warn().Err(err).Str("request_id", pr.request.ID).Msg("failed to record approval audit")
		}
	}

	if b.notifier != nil {
		if err := b.notifier.NotifyResolved(pr.request, decision); err != nil {
			b.logger.Warn().Err(err).Str("request_id", pr.request.ID).Msg("failed to send resolution notification")
		}
	}

	select {
	case pr.done <- decision:
	default:
		// No listener; the owning turn went away. Best-effort no-op.
	}
}

// pruneResolvedLocked drops resolved entries whose purge time passed.
// Caller must hold b.mu.
func (b *Broker) pruneResolvedLocked(now time.Time) {
	for id, entry := range b.resolved {
		if now.After(entry.purgeAt) {
			delete(b.resolved, id)
		}
	}
}

// GetPending returns a pending approval request by id.
func (b *Broker) GetPending(id string) (*Request, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pr, ok := b.pending[id]; ok {
		return pr.request, true
	}
	return nil, false
}

// ListPending returns all pending approval requests.
func (b *Broker) ListPending() []*Request {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]*Request, 0, len(b.pending))
	for _, pr := range b.pending {
		result = append(result, pr.request)
	}
	return result
}

// PendingCount returns the number of pending requests.
func (b *Broker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close rejects all pending requests and refuses further registrations.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	pending := make([]*pendingRequest, 0, len(b.pending))
	for id, pr := range b.pending {
		if pr.timer != nil {
			pr.timer.Stop()
		}
		pending = append(pending, pr)
		delete(b.pending, id)
	}
	b.mu.Unlock()

	for _, pr := range pending {
		b.finishResolution(pr, DecisionRejected)
	}
}
