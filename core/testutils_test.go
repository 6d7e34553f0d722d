package core

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// plainCapability keeps plaintexts in memory. It lets tests check the values
// behind the handles the registry produces.
type plainCapability struct {
	mu       sync.Mutex
	next     int
	values   map[Handle]uint64
	owners   map[Handle]Principal
	grants   map[Handle][]Principal
	revealed []Handle
	released map[Handle]bool
	calls    map[string]int
	fail     map[string]error
}

func newPlainCapability() *plainCapability {
	return &plainCapability{
		values:   make(map[Handle]uint64),
		owners:   make(map[Handle]Principal),
		grants:   make(map[Handle][]Principal),
		released: make(map[Handle]bool),
		calls:    make(map[string]int),
		fail:   make(map[string]error),
	}
}

func (c *plainCapability) newHandle(v uint64) Handle {
	c.next++
	h := Handle(fmt.Sprintf("h%d", c.next))
	c.values[h] = v
	return h
}

// seal registers an input ciphertext owned by p.
func (c *plainCapability) seal(p Principal, v uint64) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.newHandle(v)
	c.owners[h] = p
	return h
}

func (c *plainCapability) value(h Handle) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[h]
}

func (c *plainCapability) grantsFor(h Handle) []Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Principal(nil), c.grants[h]...)
}

func (c *plainCapability) totalGrants() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, g := range c.grants {
		n += len(g)
	}
	return n
}

func (c *plainCapability) callCount(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *plainCapability) failOn(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[op] = err
}

func (c *plainCapability) enter(op string) error {
	c.calls[op]++
	return c.fail[op]
}

func (c *plainCapability) Verify(_ context.Context, h Handle, submitter Principal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("verify"); err != nil {
		return err
	}
	owner, ok := c.owners[h]
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidCiphertext, h)
	}
	if owner != submitter {
		return fmt.Errorf("%w: %s is bound to another principal", ErrInvalidCiphertext, h)
	}
	return nil
}

func (c *plainCapability) TrivialEncrypt(_ context.Context, v uint64) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("encrypt"); err != nil {
		return NoHandle, err
	}
	return c.newHandle(v), nil
}

func (c *plainCapability) GreaterThan(_ context.Context, a, b Handle) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("gt"); err != nil {
		return NoHandle, err
	}
	var out uint64
	if c.values[a] > c.values[b] {
		out = 1
	}
	return c.newHandle(out), nil
}

func (c *plainCapability) Select(_ context.Context, cond, ifTrue, ifFalse Handle) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("select"); err != nil {
		return NoHandle, err
	}
	if c.values[cond] != 0 {
		return c.newHandle(c.values[ifTrue]), nil
	}
	return c.newHandle(c.values[ifFalse]), nil
}

func (c *plainCapability) Allow(_ context.Context, h Handle, p Principal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("allow"); err != nil {
		return err
	}
	if !slices.Contains(c.grants[h], p) {
		c.grants[h] = append(c.grants[h], p)
	}
	return nil
}

func (c *plainCapability) Reveal(_ context.Context, h Handle) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("reveal"); err != nil {
		return 0, err
	}
	c.revealed = append(c.revealed, h)
	return c.values[h], nil
}

func (c *plainCapability) Check(_ context.Context, h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("check"); err != nil {
		return err
	}
	if _, ok := c.values[h]; !ok || c.released[h] {
		return fmt.Errorf("%w: %s", ErrInvalidCiphertext, h)
	}
	return nil
}

func (c *plainCapability) Release(_ context.Context, h Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter("release"); err != nil {
		return err
	}
	c.released[h] = true
	return nil
}

func (c *plainCapability) releasedHandles() map[Handle]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.released)
}

// handleCount returns the number of handles that were created and not released.
func (c *plainCapability) handleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values) - len(c.released)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// changeLog is an in-memory Store that can be told to fail.
type changeLog struct {
	mu       sync.Mutex
	changes  []Change
	auctions map[uint64]Auction
	bids     []Bid
	failWith error
}

func newChangeLog() *changeLog {
	return &changeLog{auctions: make(map[uint64]Auction)}
}

func (l *changeLog) Apply(_ context.Context, c Change) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWith != nil {
		return l.failWith
	}
	l.changes = append(l.changes, c)
	l.auctions[c.Auction.ID] = c.Auction
	if c.Bid != nil {
		l.bids = append(l.bids, *c.Bid)
	}
	return nil
}

func (l *changeLog) Load(context.Context) ([]Auction, []Bid, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	auctions := make([]Auction, 0, len(l.auctions))
	for _, a := range l.auctions {
		auctions = append(auctions, a)
	}
	return auctions, append([]Bid(nil), l.bids...), nil
}

const (
	creator Principal = "0xcreator"
	alice   Principal = "0xalice"
	bob     Principal = "0xbob"
	carol   Principal = "0xcarol"
)

type harness struct {
	cap      *plainCapability
	clock    *fakeClock
	events   *eventRecorder
	store    *changeLog
	registry *Registry
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		cap:    newPlainCapability(),
		clock:  newFakeClock(),
		events: &eventRecorder{},
		store:  newChangeLog(),
	}
	base := []Option{
		WithClock(h.clock),
		WithEventSink(h.events),
		WithStore(h.store),
	}
	h.registry = NewRegistry(h.cap, append(base, opts...)...)
	return h
}

// createAuction creates an auction paying the default fee.
func (h *harness) createAuction(t *testing.T, duration int64) uint64 {
	t.Helper()
	id, err := h.registry.CreateAuction(context.Background(), CreateAuctionParams{
		Creator:         creator,
		ItemDescription: "vintage watch",
		ReservePrice:    h.cap.seal(creator, 1),
		DurationSeconds: duration,
		Fee:             decimal.RequireFromString("0.01"),
	})
	if err != nil {
		t.Fatalf("failed to create auction: %v", err)
	}
	return id
}

func (h *harness) bid(t *testing.T, id uint64, bidder Principal, amount uint64) uint64 {
	t.Helper()
	index, err := h.registry.PlaceBid(context.Background(), id, h.cap.seal(bidder, amount), bidder)
	if err != nil {
		t.Fatalf("failed to place bid %d for %s: %v", amount, bidder, err)
	}
	return index
}
