// Package tx propagates a transactional boundary through context so that
// several stores can take part in one unit of work.
package tx

import (
	"context"
	"database/sql"
	"slices"
	"sync"
	"time"

	dErrors "regdesk/pkg/domain-errors"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Execer is the subset of *sql.DB and *sql.Tx used by stores.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor returns the transaction bound to ctx, or db when there is none.
func Executor(ctx context.Context, db *sql.DB) Execer {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}

// Runner runs fn as one unit of work. Stores called with the ctx passed to fn
// participate in the same transaction.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// defaultTxTimeout is the maximum duration for a transaction.
const defaultTxTimeout = 5 * time.Second

func prepare(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return ctx, nil, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

// PostgresRunner wraps fn in a database transaction. A ctx that already
// carries a transaction is reused, so nested calls join the outer unit.
type PostgresRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresRunner(db *sql.DB, timeout time.Duration) *PostgresRunner {
	return &PostgresRunner{db: db, timeout: timeout}
}

func (r *PostgresRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	ctx, cancel, err := prepare(ctx, r.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// numShards is the number of mutex shards used by the in-memory runner.
const numShards = 128

type shardKey struct{}

type heldKey struct{}

// WithShardKey selects the lock shard used by ShardedRunner, typically the
// id of the aggregate being mutated.
func WithShardKey(ctx context.Context, key string) context.Context {
	return WithShardKeys(ctx, key)
}

// WithShardKeys makes ShardedRunner hold the shards of every non-empty key
// for the whole unit of work.
func WithShardKeys(ctx context.Context, keys ...string) context.Context {
	return context.WithValue(ctx, shardKey{}, keys)
}

// ShardedRunner serializes units of work that share a shard key. It gives the
// in-memory stores the isolation a transaction would, without rollback.
type ShardedRunner struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

func NewShardedRunner(timeout time.Duration) *ShardedRunner {
	return &ShardedRunner{timeout: timeout}
}

func (r *ShardedRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if held, _ := ctx.Value(heldKey{}).(bool); held {
		return fn(ctx)
	}
	ctx, cancel, err := prepare(ctx, r.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	shards := r.selectShards(ctx)
	for _, i := range shards {
		r.shards[i].Lock()
	}
	defer func() {
		for _, i := range slices.Backward(shards) {
			r.shards[i].Unlock()
		}
	}()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(context.WithValue(ctx, heldKey{}, true))
}

// selectShards returns distinct shard indexes in ascending order so that
// overlapping key sets always lock in the same order.
func (r *ShardedRunner) selectShards(ctx context.Context) []int {
	keys, _ := ctx.Value(shardKey{}).([]string)
	var shards []int
	for _, key := range keys {
		if key != "" {
			shards = append(shards, int(hashString(key)%numShards))
		}
	}
	if len(shards) == 0 {
		return []int{0}
	}
	slices.Sort(shards)
	return slices.Compact(shards)
}

// hashString is FNV-1a.
func hashString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
