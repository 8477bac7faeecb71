package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	retryBaseDelay = 100 * time.Microsecond
	retryMaxShift  = 6
)

// RedisLedger keeps debts in a Redis hash and the event log in a Redis list.
// Mutations use optimistic WATCH/MULTI transactions on the debts hash and are
// retried until they commit or ctx is done.
type RedisLedger struct {
	client    *redis.Client
	owner     Address
	ownerKey  string
	debtsKey  string
	eventsKey string
}

type eventRecord struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	By    string    `json:"by"`
	Value string    `json:"value"`
	At    time.Time `json:"at"`
}

// NewRedisLedger binds the keyspace under prefix to owner. A keyspace already bound
// to a different owner is rejected with ErrOwnerMismatch.
func NewRedisLedger(ctx context.Context, client *redis.Client, prefix string, owner Address) (*RedisLedger, error) {
	if prefix == "" {
		prefix = "debts"
	}
	l := &RedisLedger{
		client:    client,
		owner:     owner,
		ownerKey:  prefix + ":owner",
		debtsKey:  prefix + ":balances",
		eventsKey: prefix + ":events",
	}
	if err := client.SetNX(ctx, l.ownerKey, string(owner), 0).Err(); err != nil {
		return nil, fmt.Errorf("bind ledger owner: %w", err)
	}
	bound, err := client.Get(ctx, l.ownerKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read ledger owner: %w", err)
	}
	if Address(bound) != owner {
		return nil, fmt.Errorf("%w: %s", ErrOwnerMismatch, bound)
	}
	return l, nil
}

// Owner returns the address allowed to repay debts.
func (l *RedisLedger) Owner() Address {
	return l.owner
}

// Borrow increases the caller's debt.
func (l *RedisLedger) Borrow(ctx context.Context, caller Address, amount *big.Int) (Receipt, error) {
	var receipt Receipt
	err := l.atomically(ctx, func(tx *redis.Tx) error {
		current, err := l.debtIn(ctx, tx, caller)
		if err != nil {
			return err
		}
		next, applied, err := borrowTransition(l.owner, caller, current, amount)
		if err != nil {
			return err
		}
		if !applied {
			receipt = Receipt{Success: false}
			return nil
		}
		ev, err := l.commit(ctx, tx, caller, next, EventBorrowed, amount)
		if err != nil {
			return err
		}
		receipt = Receipt{Success: true, Events: []Event{ev}}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// Repay decreases account's debt on behalf of the owner.
func (l *RedisLedger) Repay(ctx context.Context, caller, account Address, amount *big.Int) (Receipt, error) {
	var receipt Receipt
	err := l.atomically(ctx, func(tx *redis.Tx) error {
		current, err := l.debtIn(ctx, tx, account)
		if err != nil {
			return err
		}
		next, err := repayTransition(l.owner, caller, current, amount)
		if err != nil {
			return err
		}
		ev, err := l.commit(ctx, tx, account, next, EventRepayed, amount)
		if err != nil {
			return err
		}
		receipt = Receipt{Success: true, Events: []Event{ev}}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// CallRepay evaluates Repay's preconditions without writing.
func (l *RedisLedger) CallRepay(ctx context.Context, caller, account Address, amount *big.Int) (bool, error) {
	current, err := l.Debt(ctx, account)
	if err != nil {
		return false, err
	}
	if _, err := repayTransition(l.owner, caller, current, amount); err != nil {
		return false, err
	}
	return true, nil
}

// Debt returns the stored balance for account, zero when unseen.
func (l *RedisLedger) Debt(ctx context.Context, account Address) (*big.Int, error) {
	raw, err := l.client.HGet(ctx, l.debtsKey, string(account)).Result()
	return decodeBalance(raw, err)
}

// Events returns the event history in emission order.
func (l *RedisLedger) Events(ctx context.Context, filter EventFilter) ([]Event, error) {
	raw, err := l.client.LRange(ctx, l.eventsKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	history := make([]Event, 0, len(raw))
	for _, item := range raw {
		var rec eventRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		value, err := parseNumeric(rec.Value)
		if err != nil {
			return nil, err
		}
		history = append(history, Event{ID: rec.ID, Name: rec.Name, By: Address(rec.By), Value: value, At: rec.At})
	}
	return filterEvents(history, filter), nil
}

func (l *RedisLedger) atomically(ctx context.Context, fn func(tx *redis.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := l.client.Watch(ctx, fn, l.debtsKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		timer := time.NewTimer(retryDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// retryDelay is a jittered exponential backoff capped at 64x retryBaseDelay.
func retryDelay(attempt int) time.Duration {
	d := retryBaseDelay << min(attempt, retryMaxShift)
	return d/2 + rand.N(d/2)
}

func (l *RedisLedger) debtIn(ctx context.Context, tx *redis.Tx, account Address) (*big.Int, error) {
	raw, err := tx.HGet(ctx, l.debtsKey, string(account)).Result()
	return decodeBalance(raw, err)
}

func (l *RedisLedger) commit(ctx context.Context, tx *redis.Tx, account Address, balance *big.Int, name string, value *big.Int) (Event, error) {
	ev := newEvent(name, account, value)
	payload, err := json.Marshal(eventRecord{
		ID:    ev.ID,
		Name:  ev.Name,
		By:    string(ev.By),
		Value: ev.Value.String(),
		At:    ev.At,
	})
	if err != nil {
		return Event{}, err
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, l.debtsKey, string(account), balance.String())
		pipe.RPush(ctx, l.eventsKey, payload)
		return nil
	})
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

func decodeBalance(raw string, err error) (*big.Int, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return new(big.Int), nil
		}
		return nil, err
	}
	return parseNumeric(raw)
}
