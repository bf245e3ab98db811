package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"classlink/pkg/interfaces"
	"classlink/pkg/types"
)

const fetchTimeout = 10 * time.Second

// Update is what the client hands its consumer after each reconciliation:
// a fresh full-row snapshot, and a redirect action when the active slot
// changed to something this view has not navigated for yet.
type Update struct {
	Session  *types.ClassSession
	Redirect *Action
}

// Client keeps one student view synchronized with one teacher's row.
//
// Two event sources feed it: the change feed subscription and a poll
// ticker that re-syncs even when the push channel silently drops. Both
// paths funnel through the same full-row refetch, so they are idempotent
// with respect to each other — a feed event never carries row data, only
// the instruction to go look.
type Client struct {
	store        interfaces.SessionStore
	feed         interfaces.ChangeFeed
	teacherID    string
	pollInterval time.Duration
	logger       *zap.Logger

	updates     chan Update
	lastActedID *string

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	started  bool
	mu       sync.Mutex
}

// NewClient creates a sync client for one teacher's row.
func NewClient(store interfaces.SessionStore, changeFeed interfaces.ChangeFeed, teacherID string, pollInterval time.Duration, logger *zap.Logger) *Client {
	return &Client{
		store:        store,
		feed:         changeFeed,
		teacherID:    teacherID,
		pollInterval: pollInterval,
		logger:       logger,
		updates:      make(chan Update, 16),
		done:         make(chan struct{}),
	}
}

// Updates yields reconciliation results. The channel closes after Stop.
func (c *Client) Updates() <-chan Update {
	return c.updates
}

// Start begins the coordinating goroutine. It returns an error only when
// called twice; the initial fetch happens inside the goroutine so a slow
// store never blocks connection setup.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("sync client already started")
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx)
	return nil
}

// Stop tears the client down: subscription and ticker are released, the
// updates channel closes, and any response that arrives afterwards is
// discarded rather than applied.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		cancel := c.cancel
		started := c.started
		c.mu.Unlock()
		if !started {
			close(c.updates)
			return
		}
		cancel()
		<-c.done
	})
}

// run is the single coordinating goroutine per student view. All state
// transitions happen here, so lastActedID needs no locking.
func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.updates)

	sub := c.feed.Subscribe(c.teacherID)
	defer sub.Cancel()
	events := sub.Events()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	// Initial fetch. On failure the view stays in its loading state and
	// the poll ticker acts as the retry.
	c.reconcile(ctx)

	for {
		select {
		case _, ok := <-events:
			if !ok {
				// Feed shut down. A nil channel blocks forever, which
				// takes this case out of the select; polling converges.
				events = nil
				continue
			}
			c.reconcile(ctx)

		case <-ticker.C:
			c.reconcile(ctx)

		case <-ctx.Done():
			return
		}
	}
}

// reconcile re-reads the full row and derives whether to redirect. The
// push payload is never consulted: a notification only means "the row
// changed, go read it".
func (c *Client) reconcile(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	session, err := c.store.GetSession(fetchCtx, c.teacherID)
	cancel()

	if ctx.Err() != nil {
		return // torn down while the fetch was in flight
	}
	if err != nil {
		if !errors.Is(err, interfaces.ErrSessionNotFound) {
			c.logger.Warn("session fetch failed",
				zap.String("teacher_id", c.teacherID),
				zap.Error(err))
		}
		return
	}

	update := Update{Session: session}

	action := Decide(c.lastActedID, session.ActiveSlotID, session.Slots)
	switch {
	case session.ActiveSlotID == nil:
		// Deactivation clears the marker so re-activating the same slot
		// later fires a fresh redirect.
		c.lastActedID = nil
	case action.Type == ActionNavigate:
		update.Redirect = &action
		id := *session.ActiveSlotID
		c.lastActedID = &id
	}

	select {
	case c.updates <- update:
	case <-ctx.Done():
	}
}
