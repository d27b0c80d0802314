package arbiter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v9"
	"github.com/google/uuid"

	"github.com/dom/live-auction-server/internal/domain"
)

// tryBidScript performs the compare-and-set for one item. KEYS[1] is the
// highest_bid key, KEYS[2] the highest_bidder key; ARGV[1] the new amount,
// ARGV[2] the bidder id. Equal amounts lose.
var tryBidScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and tonumber(ARGV[1]) <= tonumber(current) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
return 1
`)

// storeResultScript records an idempotency outcome and releases the pending
// marker in one step. KEYS[1] result, KEYS[2] pending; ARGV[1] payload,
// ARGV[2] TTL in milliseconds.
var storeResultScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('DEL', KEYS[2])
return 1
`)

// RedisArbiter arbitrates bids through a shared Redis instance, which makes
// the decision valid across engine instances.
type RedisArbiter struct {
	rdb *redis.Client
}

func NewRedis(url string) (*RedisArbiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("arbiter: invalid redis url: %w", err)
	}
	return &RedisArbiter{rdb: redis.NewClient(opts)}, nil
}

// NewRedisFromClient wraps an existing client, used by tests.
func NewRedisFromClient(rdb *redis.Client) *RedisArbiter {
	return &RedisArbiter{rdb: rdb}
}

func (a *RedisArbiter) Ping(ctx context.Context) error {
	return a.rdb.Ping(ctx).Err()
}

func (a *RedisArbiter) Seed(ctx context.Context, auctionID, itemID uuid.UUID, amount int64, bidderID *uuid.UUID) error {
	pipe := a.rdb.TxPipeline()
	pipe.Set(ctx, highestBidKey(auctionID, itemID), amount, 0)
	if bidderID != nil {
		pipe.Set(ctx, highestBidderKey(auctionID, itemID), bidderID.String(), 0)
	} else {
		pipe.Del(ctx, highestBidderKey(auctionID, itemID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("arbiter: seed item %s: %w", itemID, wrapUnavailable(err))
	}
	return nil
}

func (a *RedisArbiter) TryBid(ctx context.Context, auctionID, itemID, bidderID uuid.UUID, amount int64) (bool, error) {
	keys := []string{highestBidKey(auctionID, itemID), highestBidderKey(auctionID, itemID)}
	res, err := tryBidScript.Run(ctx, a.rdb, keys, amount, bidderID.String()).Int()
	if err != nil {
		return false, fmt.Errorf("arbiter: try bid on item %s: %w", itemID, wrapUnavailable(err))
	}
	return res == 1, nil
}

func (a *RedisArbiter) ClearItem(ctx context.Context, auctionID, itemID uuid.UUID) error {
	err := a.rdb.Del(ctx, highestBidKey(auctionID, itemID), highestBidderKey(auctionID, itemID)).Err()
	if err != nil {
		return fmt.Errorf("arbiter: clear item %s: %w", itemID, wrapUnavailable(err))
	}
	return nil
}

func (a *RedisArbiter) ClearAuction(ctx context.Context, auctionID uuid.UUID, itemIDs []uuid.UUID) error {
	keys := make([]string, 0, len(itemIDs)*2)
	for _, itemID := range itemIDs {
		keys = append(keys, highestBidKey(auctionID, itemID), highestBidderKey(auctionID, itemID))
	}
	if len(keys) == 0 {
		return nil
	}
	if err := a.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("arbiter: clear auction %s: %w", auctionID, wrapUnavailable(err))
	}
	return nil
}

func (a *RedisArbiter) Claim(ctx context.Context, key IdemKey) (bool, error) {
	ok, err := a.rdb.SetNX(ctx, pendingKey(key), "1", ClaimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("arbiter: claim: %w", wrapUnavailable(err))
	}
	return ok, nil
}

func (a *RedisArbiter) Result(ctx context.Context, key IdemKey) (*Outcome, error) {
	raw, err := a.rdb.Get(ctx, resultKey(key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("arbiter: get result: %w", wrapUnavailable(err))
	}
	var out Outcome
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("arbiter: decode result: %w", err)
	}
	return &out, nil
}

func (a *RedisArbiter) StoreResult(ctx context.Context, key IdemKey, out Outcome) error {
	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("arbiter: encode result: %w", err)
	}
	keys := []string{resultKey(key), pendingKey(key)}
	if err := storeResultScript.Run(ctx, a.rdb, keys, payload, ResultTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("arbiter: store result: %w", wrapUnavailable(err))
	}
	return nil
}

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
}
