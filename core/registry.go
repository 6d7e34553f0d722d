package core

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
)

// Policy holds the bidding rules that the ledger leaves to the operator.
type Policy struct {
	// AllowCreatorBids lets an auction's creator bid on it.
	AllowCreatorBids bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the ledger clock.
func WithClock(c Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithEventSink sets where committed events are published.
func WithEventSink(s EventSink) Option {
	return func(r *Registry) { r.sink = s }
}

// WithStore sets the persistence layer. Every mutation is written through it
// before it becomes visible to readers.
func WithStore(s Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithFee sets the auction creation cost.
func WithFee(fee decimal.Decimal) Option {
	return func(r *Registry) { r.fee = fee }
}

// WithPolicy sets the bidding policy.
func WithPolicy(p Policy) Option {
	return func(r *Registry) { r.policy = p }
}

// snapshot is an immutable view of every auction. Slot i holds id i+1.
type snapshot struct {
	auctions auctionTable
}

func (s *snapshot) len() int { return s.auctions.len() }

func (s *snapshot) get(id uint64) (*auctionState, error) {
	if id == 0 || id > uint64(s.auctions.len()) {
		return nil, fmt.Errorf("%w: %d", ErrAuctionNotFound, id)
	}
	return s.auctions.at(int(id - 1)), nil
}

func (s *snapshot) with(st *auctionState) *snapshot {
	return &snapshot{auctions: s.auctions.set(int(st.auction.ID-1), st)}
}

// Registry owns every auction and its bid ledger. Mutations are applied one at
// a time under mu; reads load the latest committed snapshot without locking.
type Registry struct {
	capability Capability
	clock      Clock
	sink       EventSink
	store      Store
	fee        decimal.Decimal
	policy     Policy

	mu    sync.Mutex
	seq   uint64
	state atomic.Pointer[snapshot]

	// Committed events wait in outbox until a publisher holding pubMu
	// delivers them. Events enter in sequence order under mu and leave in the
	// same order.
	pubMu    sync.Mutex
	outboxMu sync.Mutex
	outbox   []Event
}

// NewRegistry creates an empty registry evaluating bids through capability.
func NewRegistry(capability Capability, opts ...Option) *Registry {
	r := &Registry{
		capability: capability,
		clock:      SystemClock,
		sink:       discardSink{},
		store:      nopStore{},
		fee:        DefaultAuctionFee,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.state.Store(&snapshot{})
	return r
}

// Restore loads persisted state from the store. It must run before the first
// mutation. Every handle the ledger still needs is checked against the
// capability when it supports HandleChecker, and the creator grant of each
// resolved auction is reissued.
func (r *Registry) Restore(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := r.state.Load().len(); n > 0 {
		return fmt.Errorf("registry already holds %d auctions", n)
	}

	auctions, bids, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load auctions: %w", err)
	}

	sort.Slice(auctions, func(i, j int) bool { return auctions[i].ID < auctions[j].ID })
	sort.Slice(bids, func(i, j int) bool {
		if bids[i].AuctionID != bids[j].AuctionID {
			return bids[i].AuctionID < bids[j].AuctionID
		}
		return bids[i].Index < bids[j].Index
	})

	states := make([]*auctionState, len(auctions))
	seq := uint64(0)
	for i, a := range auctions {
		if a.ID != uint64(i)+1 {
			return fmt.Errorf("failed to restore: auction ids are not dense (expected %d, got %d)", i+1, a.ID)
		}
		states[i] = &auctionState{auction: a}
		seq++
		if a.Status.Terminal() {
			seq++
		}
	}
	for _, b := range bids {
		if b.AuctionID == 0 || b.AuctionID > uint64(len(states)) {
			return fmt.Errorf("failed to restore: bid %d references unknown auction %d", b.Index, b.AuctionID)
		}
		st := states[b.AuctionID-1]
		if b.Index != uint64(len(st.bids)) {
			return fmt.Errorf("failed to restore: auction %d bid index %d out of sequence", b.AuctionID, b.Index)
		}
		st.bids = append(st.bids, b)
		seq++
	}

	var table auctionTable
	for i, st := range states {
		if st.auction.TotalBids != uint64(len(st.bids)) {
			return fmt.Errorf("failed to restore: auction %d records %d bids but %d are stored",
				st.auction.ID, st.auction.TotalBids, len(st.bids))
		}
		if err := r.checkHandles(ctx, st.auction); err != nil {
			return fmt.Errorf("failed to restore: auction %d: %w", st.auction.ID, err)
		}
		if err := r.grantCreator(ctx, st.auction); err != nil {
			return fmt.Errorf("failed to restore: auction %d: %w", st.auction.ID, err)
		}
		table = table.set(i, st)
	}

	r.seq = seq
	r.state.Store(&snapshot{auctions: table})
	return nil
}

// checkHandles verifies that the capability still holds the running maximum
// of an auction that can take bids or be ended, and the winning amount of a
// resolved one.
func (r *Registry) checkHandles(ctx context.Context, a Auction) error {
	checker, ok := r.capability.(HandleChecker)
	if !ok || a.TotalBids == 0 {
		return nil
	}
	var live []Handle
	switch {
	case a.Status == StatusActive:
		live = []Handle{a.HighestAmount, a.HighestBidderIndex}
	case a.Status == StatusEnded && a.Resolved:
		live = []Handle{a.HighestAmount}
	}
	for _, h := range live {
		if err := checker.Check(ctx, h); err != nil {
			return capabilityErr("check", err)
		}
	}
	return nil
}

// CreateAuctionParams are the inputs of CreateAuction.
type CreateAuctionParams struct {
	Creator         Principal
	ItemDescription string
	ReservePrice    Handle
	DurationSeconds int64
	Fee             decimal.Decimal
}

// CreateAuction allocates a new Active auction and returns its id.
func (r *Registry) CreateAuction(ctx context.Context, p CreateAuctionParams) (uint64, error) {
	if p.Creator == NoPrincipal {
		return 0, ErrUnauthorized
	}
	if p.DurationSeconds <= 0 {
		return 0, ErrInvalidDuration
	}
	if !FeeMeetsMinimum(p.Fee, r.fee) {
		return 0, fmt.Errorf("%w: paid %s, required %s", ErrInsufficientFee, p.Fee.String(), r.fee.String())
	}
	if p.ReservePrice == NoHandle {
		return 0, ErrInvalidCiphertext
	}
	if err := r.capability.Verify(ctx, p.ReservePrice, p.Creator); err != nil {
		return 0, capabilityErr("verify", err)
	}

	ev, err := r.apply(ctx, func(cur *snapshot, now int64) (step, error) {
		if p.DurationSeconds > math.MaxInt64-now {
			return step{}, ErrInvalidDuration
		}
		a := Auction{
			ID:              uint64(cur.len()) + 1,
			Creator:         p.Creator,
			ItemDescription: p.ItemDescription,
			ReservePrice:    p.ReservePrice,
			Status:          StatusActive,
			EndTime:         now + p.DurationSeconds,
			CreatedAt:       now,
		}
		ev := Event{
			Type:            EventAuctionCreated,
			Creator:         a.Creator,
			ItemDescription: a.ItemDescription,
			EndTime:         a.EndTime,
		}
		return step{state: &auctionState{auction: a}, change: Change{Auction: a, Created: true}, event: ev}, nil
	})
	if err != nil {
		return 0, err
	}
	return ev.AuctionID, nil
}

// step is the outcome of a mutation.
type step struct {
	state  *auctionState
	change Change
	event  Event

	// after runs under the registry lock once change is persisted and before
	// the new state becomes visible. Its error is returned to the caller but
	// the commit stands.
	after func(ctx context.Context) error
	// obsolete handles are released once change is persisted; fresh handles
	// are released if it is not.
	obsolete []Handle
	fresh    []Handle
}

// mutation computes the next state of one auction from the current snapshot.
// It must not touch registry state; apply commits its result.
type mutation func(cur *snapshot, now int64) (step, error)

// apply is the registry's single serialization point. The event of a
// committed mutation is published before apply returns, after every event
// committed ahead of it.
func (r *Registry) apply(ctx context.Context, m mutation) (Event, error) {
	ev, committed, err := r.commit(ctx, m)
	if committed {
		r.flush(context.WithoutCancel(ctx))
	}
	return ev, err
}

func (r *Registry) commit(ctx context.Context, m mutation) (Event, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Event{}, false, err
	}

	cur := r.state.Load()
	now := r.clock.Now().Unix()

	s, err := m(cur, now)
	if err != nil {
		return Event{}, false, err
	}
	if err := r.store.Apply(ctx, s.change); err != nil {
		r.release(ctx, s.fresh)
		return Event{}, false, fmt.Errorf("failed to persist auction %d: %w", s.change.Auction.ID, err)
	}

	// The change is durable from here on.
	ctx = context.WithoutCancel(ctx)
	var afterErr error
	if s.after != nil {
		afterErr = s.after(ctx)
	}
	r.state.Store(cur.with(s.state))
	r.release(ctx, s.obsolete)

	r.seq++
	ev := s.event
	ev.Seq = r.seq
	ev.AuctionID = s.state.auction.ID
	ev.Timestamp = now
	r.outboxMu.Lock()
	r.outbox = append(r.outbox, ev)
	r.outboxMu.Unlock()
	return ev, true, afterErr
}

// flush publishes queued events in sequence order. A caller that finds
// another publisher active waits for it and then drains what is left, so its
// own event is delivered by the time flush returns.
func (r *Registry) flush(ctx context.Context) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	for {
		r.outboxMu.Lock()
		pending := r.outbox
		r.outbox = nil
		r.outboxMu.Unlock()
		if len(pending) == 0 {
			return
		}
		for _, ev := range pending {
			r.publish(ctx, ev)
		}
	}
}

func (r *Registry) publish(ctx context.Context, ev Event) {
	if err := r.sink.Publish(ctx, ev); err != nil {
		log.Printf("ERROR: Failed to publish %s for auction %d (seq %d): %v", ev.Type, ev.AuctionID, ev.Seq, err)
	}
}

// release discards handles when the capability supports it. Failures only
// leak ciphertexts, so they are logged.
func (r *Registry) release(ctx context.Context, handles []Handle) {
	releaser, ok := r.capability.(Releaser)
	if !ok {
		return
	}
	for _, h := range handles {
		if h == NoHandle {
			continue
		}
		if err := releaser.Release(ctx, h); err != nil {
			log.Printf("WARN: Failed to release handle %s: %v", h, err)
		}
	}
}
