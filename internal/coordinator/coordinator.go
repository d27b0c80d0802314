// Package coordinator binds the engine, arbiter, durable log and scheduler
// for each auction. All mutations of one auction run under its lock in strict
// sequential order; different auctions proceed in parallel.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/dom/live-auction-server/internal/arbiter"
	"github.com/dom/live-auction-server/internal/broadcast"
	"github.com/dom/live-auction-server/internal/domain"
	"github.com/dom/live-auction-server/internal/engine"
	"github.com/dom/live-auction-server/internal/repository"
)

const (
	maxIdempotencyKeyLen = 128

	// Bounded wait for a duplicate bid whose twin holds the claim,
	// typically on another engine instance.
	idemPollAttempts = 40
	idemPollInterval = 25 * time.Millisecond

	// Terminal log writes must land eventually; transient failures retry.
	finalizeAttempts = 3
)

type liveAuction struct {
	mu    sync.Mutex
	eng   *engine.Engine
	timer *itemTimer

	// Wall-clock facts the clock-free engine does not track.
	createdAt time.Time
	startedAt *time.Time
	endedAt   *time.Time
}

type Coordinator struct {
	users repository.UserRepository
	alog  repository.AuctionRepository
	arb   arbiter.Arbiter
	hub   *broadcast.Hub

	mu     sync.RWMutex
	live   map[uuid.UUID]*liveAuction
	closed bool
}

func New(users repository.UserRepository, alog repository.AuctionRepository, arb arbiter.Arbiter, hub *broadcast.Hub) *Coordinator {
	return &Coordinator{
		users: users,
		alog:  alog,
		arb:   arb,
		hub:   hub,
		live:  make(map[uuid.UUID]*liveAuction),
	}
}

// Recover re-hydrates all non-ended auctions from the durable log. Live
// auctions get their arbiter keys re-seeded and their expiry timers re-armed
// with the remaining time derived from the item's persisted live_at; items
// already past their deadline expire immediately.
func (c *Coordinator) Recover(ctx context.Context) error {
	auctions, err := c.alog.LoadActive(ctx)
	if err != nil {
		return err
	}

	for _, a := range auctions {
		la := &liveAuction{
			eng:       engine.Restore(a),
			timer:     newItemTimer(),
			createdAt: a.CreatedAt,
			startedAt: a.StartedAt,
			endedAt:   a.EndedAt,
		}

		c.mu.Lock()
		c.live[a.ID] = la
		c.mu.Unlock()

		if a.Status != domain.AuctionStatusLive {
			continue
		}
		item := a.CurrentItem()
		if item == nil || item.Status != domain.ItemStatusLive {
			continue
		}

		if err := c.arb.Seed(ctx, a.ID, item.ID, item.HighestBid, item.HighestBidderID); err != nil {
			log.WithError(err).WithField("auctionId", a.ID).Error("recovery: failed to re-seed arbiter")
		}

		total := time.Duration(item.DurationSec) * time.Second
		if item.Extended {
			total += time.Duration(item.ExtraDurationSec) * time.Second
		}
		d := total
		if item.LiveAt != nil {
			d = time.Until(item.LiveAt.Add(total))
		}
		auctionID := a.ID
		la.timer.Schedule(d, func() { c.handleExpiry(auctionID) })

		log.WithFields(log.Fields{
			"auctionId": a.ID,
			"itemId":    item.ID,
			"remaining": d.String(),
		}).Info("recovered live auction")
	}

	log.WithField("count", len(auctions)).Info("auction recovery complete")
	return nil
}

// CreateAuction validates the seller, persists the initial state and registers
// the auction in memory.
func (c *Coordinator) CreateAuction(ctx context.Context, sellerID uuid.UUID, items []engine.ItemInput) (*AuctionView, error) {
	if _, err := c.users.GetByID(ctx, sellerID); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrNoItems
	}

	eng := engine.Create(uuid.New(), sellerID, items)
	state := eng.Snapshot()
	state.CreatedAt = time.Now().UTC()

	if err := c.alog.Create(ctx, state); err != nil {
		return nil, err
	}

	la := &liveAuction{
		eng:       engine.Restore(state),
		timer:     newItemTimer(),
		createdAt: state.CreatedAt,
	}

	c.mu.Lock()
	if !c.closed {
		c.live[state.ID] = la
	}
	c.mu.Unlock()

	log.WithFields(log.Fields{
		"auctionId": state.ID,
		"sellerId":  sellerID,
		"items":     len(items),
	}).Info("auction created")

	return la.view(), nil
}

// StartAuction transitions the auction live, seeds the arbiter for the first
// item and arms the expiry timer.
func (c *Coordinator) StartAuction(ctx context.Context, auctionID, callerID uuid.UUID) (*AuctionView, error) {
	la, err := c.lookup(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	la.mu.Lock()
	defer la.mu.Unlock()

	if callerID != la.eng.SellerID() {
		return nil, domain.ErrPermissionDenied
	}
	if err := la.eng.Start(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	la.startedAt = &now
	item := la.eng.CurrentItem()

	if err := c.arb.Seed(ctx, auctionID, item.ID, item.StartingPrice, nil); err != nil {
		return nil, err
	}
	err = c.alog.SetAuctionStatus(ctx, auctionID, domain.AuctionStatusLive, repository.AuctionUpdate{StartedAt: &now})
	if err != nil {
		return nil, err
	}
	err = c.alog.SetItemStatus(ctx, item.ID, domain.ItemStatusLive, repository.ItemUpdate{LiveAt: &now})
	if err != nil {
		return nil, err
	}

	la.timer.Schedule(time.Duration(item.DurationSec)*time.Second, func() { c.handleExpiry(auctionID) })

	log.WithFields(log.Fields{"auctionId": auctionID, "itemId": item.ID}).Info("auction started")
	c.publishState(auctionID, la)
	return la.view(), nil
}

// PlaceBid runs the full bid path: engine admissibility, idempotency
// protocol, arbiter check-and-set, engine commit, log append, broadcast.
// The outcome always comes back as a value; errors mean the auction is
// unknown or a backing service is down.
func (c *Coordinator) PlaceBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount int64, idempotencyKey string) (arbiter.Outcome, error) {
	if len(idempotencyKey) > maxIdempotencyKeyLen {
		idempotencyKey = idempotencyKey[:maxIdempotencyKeyLen]
	}

	la := c.get(auctionID)
	if la == nil {
		// The auction may exist but be finished; a bid on it is not an
		// error, just too late.
		if _, err := c.alog.GetByID(ctx, auctionID); err != nil {
			return arbiter.Outcome{}, err
		}
		return arbiter.Outcome{Accepted: false, Reason: domain.ReasonNotLive}, nil
	}

	la.mu.Lock()

	// A stored outcome for this idempotency key is returned verbatim, even
	// when the bid would no longer be admissible: a retry of an accepted
	// bid stays accepted.
	item := la.eng.CurrentItem()
	var ik arbiter.IdemKey
	if idempotencyKey != "" && item != nil {
		ik = arbiter.IdemKey{AuctionID: auctionID, ItemID: item.ID, BidderID: bidderID, Key: idempotencyKey}
		stored, err := c.arb.Result(ctx, ik)
		if err != nil {
			la.mu.Unlock()
			return arbiter.Outcome{}, err
		}
		if stored != nil {
			la.mu.Unlock()
			return *stored, nil
		}
	}

	if err := la.eng.CheckBid(amount); err != nil {
		la.mu.Unlock()
		return rejectedOutcome(err), nil
	}

	if idempotencyKey != "" {
		owned, err := c.arb.Claim(ctx, ik)
		if err != nil {
			la.mu.Unlock()
			return arbiter.Outcome{}, err
		}
		if !owned {
			// A twin of this bid holds the claim. Wait for its outcome
			// outside the auction lock.
			la.mu.Unlock()
			return c.awaitDuplicate(ctx, ik)
		}
	}

	accepted, err := c.arb.TryBid(ctx, auctionID, item.ID, bidderID, amount)
	if err != nil {
		la.mu.Unlock()
		return arbiter.Outcome{}, err
	}

	if !accepted {
		out := arbiter.Outcome{Accepted: false, Reason: domain.ReasonOutpaced}
		c.storeOutcome(ctx, ik, idempotencyKey, out)
		la.mu.Unlock()
		return out, nil
	}

	// The engine is serialized per auction, so the arbiter-accepted amount
	// is also above the engine's prior highest.
	if err := la.eng.PlaceBid(bidderID, amount); err != nil {
		la.mu.Unlock()
		return arbiter.Outcome{}, err
	}

	bid := &domain.Bid{
		ID:        uuid.New(),
		AuctionID: auctionID,
		ItemID:    item.ID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.alog.AppendBid(ctx, bid); err != nil {
		// The arbiter accepted; in-memory state stays authoritative and
		// the log catches up at item close.
		log.WithError(err).WithFields(log.Fields{
			"auctionId": auctionID,
			"itemId":    item.ID,
			"amount":    amount,
		}).Error("failed to persist accepted bid")
	}

	out := arbiter.Outcome{Accepted: true}
	c.storeOutcome(ctx, ik, idempotencyKey, out)

	log.WithFields(log.Fields{
		"auctionId": auctionID,
		"itemId":    item.ID,
		"bidderId":  bidderID,
		"amount":    amount,
	}).Info("bid accepted")

	c.publishState(auctionID, la)
	la.mu.Unlock()
	return out, nil
}

// ExtendItem grants the current item its single extension. Only the seller
// may extend; the extension adds to the remaining time.
func (c *Coordinator) ExtendItem(ctx context.Context, auctionID, callerID uuid.UUID) (*AuctionView, error) {
	la, err := c.lookup(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	la.mu.Lock()
	defer la.mu.Unlock()

	if callerID != la.eng.SellerID() {
		return nil, domain.ErrPermissionDenied
	}
	if err := la.eng.ExtendCurrentItem(); err != nil {
		return nil, err
	}

	item := la.eng.CurrentItem()
	extended := true
	err = c.alog.SetItemStatus(ctx, item.ID, domain.ItemStatusLive, repository.ItemUpdate{Extended: &extended})
	if err != nil {
		log.WithError(err).WithField("itemId", item.ID).Error("failed to persist item extension")
	}

	endTime := la.timer.Extend(time.Duration(item.ExtraDurationSec)*time.Second, func() { c.handleExpiry(auctionID) })

	log.WithFields(log.Fields{
		"auctionId": auctionID,
		"itemId":    item.ID,
		"endTime":   endTime.UnixMilli(),
	}).Info("item extended")

	c.publishState(auctionID, la)
	return la.view(), nil
}

// GetAuction returns the live in-memory view when the auction is loaded,
// otherwise the durable view.
func (c *Coordinator) GetAuction(ctx context.Context, auctionID uuid.UUID) (*AuctionView, error) {
	if la := c.get(auctionID); la != nil {
		la.mu.Lock()
		defer la.mu.Unlock()
		return la.view(), nil
	}
	a, err := c.alog.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return viewFromState(a, nil), nil
}

// ListAuctions returns summaries of all auctions, newest first.
func (c *Coordinator) ListAuctions(ctx context.Context) ([]AuctionSummary, error) {
	auctions, err := c.alog.List(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]AuctionSummary, len(auctions))
	for i, a := range auctions {
		summaries[i] = summaryFromAuction(a)
	}
	return summaries, nil
}

// Close cancels every timer and empties the registry. In-flight mutations
// finish; no new expiries fire.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, la := range c.live {
		la.timer.Stop()
	}
	c.live = make(map[uuid.UUID]*liveAuction)
}

// handleExpiry closes the current item when its timer fires, then advances to
// the next item or finishes the auction. Double fires are harmless: the
// engine rejects closing a non-live item.
func (c *Coordinator) handleExpiry(auctionID uuid.UUID) {
	la := c.get(auctionID)
	if la == nil {
		return
	}
	ctx := context.Background()

	la.mu.Lock()
	defer la.mu.Unlock()

	closeRes, err := la.eng.EndCurrentItem()
	if err != nil {
		return
	}
	la.timer.Stop()
	now := time.Now().UTC()

	c.withRetries(func() error {
		return c.alog.FinalizeItem(ctx, closeRes.ItemID, closeRes.WinnerID, closeRes.FinalPrice, now)
	}, "finalize item", closeRes.ItemID)

	if err := c.arb.ClearItem(ctx, auctionID, closeRes.ItemID); err != nil {
		log.WithError(err).WithField("itemId", closeRes.ItemID).Error("failed to clear arbiter item keys")
	}

	log.WithFields(log.Fields{
		"auctionId":  auctionID,
		"itemId":     closeRes.ItemID,
		"finalPrice": closeRes.FinalPrice,
		"hadBids":    closeRes.HadBids,
	}).Info("item closed")

	c.publish(auctionID, broadcast.MessageTypeItemSold, ItemSoldPayload{
		AuctionID:  auctionID.String(),
		ItemID:     closeRes.ItemID.String(),
		WinnerID:   optionalID(closeRes.WinnerID),
		FinalPrice: closeRes.FinalPrice,
	})
	c.publishState(auctionID, la)

	if la.eng.AdvanceToNextItem() {
		item := la.eng.CurrentItem()
		if err := c.arb.Seed(ctx, auctionID, item.ID, item.StartingPrice, nil); err != nil {
			log.WithError(err).WithField("itemId", item.ID).Error("failed to seed arbiter for next item")
		}
		err := c.alog.SetItemStatus(ctx, item.ID, domain.ItemStatusLive, repository.ItemUpdate{LiveAt: &now})
		if err != nil {
			log.WithError(err).WithField("itemId", item.ID).Error("failed to persist next live item")
		}
		idx := item.ItemOrder
		err = c.alog.SetAuctionStatus(ctx, auctionID, domain.AuctionStatusLive, repository.AuctionUpdate{CurrentItemIndex: &idx})
		if err != nil {
			log.WithError(err).WithField("auctionId", auctionID).Error("failed to persist current item index")
		}

		la.timer.Schedule(time.Duration(item.DurationSec)*time.Second, func() { c.handleExpiry(auctionID) })
		c.publishState(auctionID, la)
		return
	}

	// No items left: the auction is over.
	summary := la.eng.EndAuction()
	la.endedAt = &now

	var winners []domain.ItemResult
	resultViews := make([]ItemResultView, len(summary.Results))
	itemIDs := make([]uuid.UUID, len(summary.Results))
	for i, res := range summary.Results {
		itemIDs[i] = res.ItemID
		resultViews[i] = ItemResultView{
			ItemID:     res.ItemID.String(),
			WinnerID:   optionalID(res.WinnerID),
			FinalPrice: res.FinalPrice,
		}
		if res.WinnerID != nil {
			winners = append(winners, domain.ItemResult{
				ItemID:     res.ItemID,
				WinnerID:   *res.WinnerID,
				FinalPrice: res.FinalPrice,
				SoldAt:     now,
			})
		}
	}

	c.withRetries(func() error {
		return c.alog.FinalizeAuction(ctx, auctionID, winners, now)
	}, "finalize auction", auctionID)

	if err := c.arb.ClearAuction(ctx, auctionID, itemIDs); err != nil {
		log.WithError(err).WithField("auctionId", auctionID).Error("failed to clear arbiter auction keys")
	}

	log.WithField("auctionId", auctionID).Info("auction ended")

	c.publish(auctionID, broadcast.MessageTypeAuctionEnded, AuctionEndedPayload{
		AuctionID: auctionID.String(),
		Results:   resultViews,
	})
	c.publishState(auctionID, la)

	c.mu.Lock()
	delete(c.live, auctionID)
	c.mu.Unlock()
}

func (c *Coordinator) get(auctionID uuid.UUID) *liveAuction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.live[auctionID]
}

// lookup resolves a registry entry for a mutation. A known but unloaded
// auction is already ended, so mutating it is an illegal transition.
func (c *Coordinator) lookup(ctx context.Context, auctionID uuid.UUID) (*liveAuction, error) {
	if la := c.get(auctionID); la != nil {
		return la, nil
	}
	if _, err := c.alog.GetByID(ctx, auctionID); err != nil {
		return nil, err
	}
	return nil, domain.ErrIllegalTransition
}

func (c *Coordinator) awaitDuplicate(ctx context.Context, ik arbiter.IdemKey) (arbiter.Outcome, error) {
	for i := 0; i < idemPollAttempts; i++ {
		select {
		case <-ctx.Done():
			return arbiter.Outcome{}, ctx.Err()
		case <-time.After(idemPollInterval):
		}
		stored, err := c.arb.Result(ctx, ik)
		if err != nil {
			return arbiter.Outcome{}, err
		}
		if stored != nil {
			return *stored, nil
		}
	}
	return arbiter.Outcome{Accepted: false, Reason: domain.ReasonDuplicateInFlight}, nil
}

func (c *Coordinator) storeOutcome(ctx context.Context, ik arbiter.IdemKey, key string, out arbiter.Outcome) {
	if key == "" {
		return
	}
	if err := c.arb.StoreResult(ctx, ik, out); err != nil {
		log.WithError(err).Error("failed to store bid outcome")
	}
}

func (c *Coordinator) withRetries(fn func() error, what string, id uuid.UUID) {
	var err error
	for attempt := 1; attempt <= finalizeAttempts; attempt++ {
		if err = fn(); err == nil {
			return
		}
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	log.WithError(err).WithField("id", id).Errorf("failed to %s after %d attempts", what, finalizeAttempts)
}

// view builds the wire state; callers hold la.mu.
func (la *liveAuction) view() *AuctionView {
	state := la.eng.Snapshot()
	state.CreatedAt = la.createdAt
	state.StartedAt = la.startedAt
	state.EndedAt = la.endedAt

	var itemEndTime *int64
	if end, armed := la.timer.EndTime(); armed {
		ms := end.UnixMilli()
		itemEndTime = &ms
	}
	return viewFromState(state, itemEndTime)
}

func (c *Coordinator) publishState(auctionID uuid.UUID, la *liveAuction) {
	c.publish(auctionID, broadcast.MessageTypeAuctionState, la.view())
}

func (c *Coordinator) publish(auctionID uuid.UUID, msgType broadcast.MessageType, payload interface{}) {
	msg, err := broadcast.NewMessage(msgType, payload)
	if err != nil {
		log.WithError(err).Error("failed to encode broadcast message")
		return
	}
	c.hub.Publish(broadcast.AuctionRoom(auctionID), msg)
}

func rejectedOutcome(err error) arbiter.Outcome {
	reason := domain.ReasonNotLive
	switch {
	case errors.Is(err, domain.ErrNoLiveItem):
		reason = domain.ReasonNoLiveItem
	case errors.Is(err, domain.ErrBidTooLow):
		reason = domain.ReasonBidTooLow
	}
	return arbiter.Outcome{Accepted: false, Reason: reason}
}
