package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stablePool/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pools (
	chain_id BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	tokens TEXT[] NOT NULL,
	a BIGINT NOT NULL,
	swap_fee BIGINT NOT NULL,
	admin_fee BIGINT NOT NULL,
	first_seen_block BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address)
);
CREATE TABLE IF NOT EXISTS pool_window_metrics (
	chain_id BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	window_size_seconds BIGINT NOT NULL,
	window_start_ts TIMESTAMPTZ NOT NULL,
	window_end_ts TIMESTAMPTZ NOT NULL,
	swap_count BIGINT NOT NULL,
	add_count BIGINT NOT NULL,
	remove_count BIGINT NOT NULL,
	volumes NUMERIC[] NOT NULL,
	fees NUMERIC[] NOT NULL,
	volumes_display TEXT[],
	lp_total_supply NUMERIC,
	virtual_price_open NUMERIC,
	virtual_price_close NUMERIC,
	virtual_price_growth NUMERIC,
	apr NUMERIC,
	fee_method TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address, window_size_seconds, window_start_ts)
);
CREATE TABLE IF NOT EXISTS indexer_state (
	name TEXT PRIMARY KEY,
	last_processed_ts BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`

// Store provides Postgres persistence for pools and window metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertPools inserts or updates pool rows.
func (s *Store) UpsertPools(ctx context.Context, pools []model.Pool) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, tokens, a, swap_fee, admin_fee, first_seen_block, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				tokens = EXCLUDED.tokens,
				a = EXCLUDED.a,
				swap_fee = EXCLUDED.swap_fee,
				admin_fee = EXCLUDED.admin_fee,
				first_seen_block = LEAST(pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(pool.ChainID),
			pool.Address,
			pool.Tokens,
			int64(pool.A),
			int64(pool.SwapFee),
			int64(pool.AdminFee),
			int64(pool.FirstSeenBlock),
		)
	}
	return sendBatch(ctx, s.pool, batch, len(pools))
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				chain_id, pool_address, window_size_seconds, window_start_ts, window_end_ts,
				swap_count, add_count, remove_count, volumes, fees, volumes_display,
				lp_total_supply, virtual_price_open, virtual_price_close, virtual_price_growth,
				apr, fee_method, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::numeric[],$10::numeric[],$11,$12::numeric,$13::numeric,$14::numeric,$15::numeric,$16::numeric,$17,now(),now())
			ON CONFLICT (chain_id, pool_address, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				swap_count = EXCLUDED.swap_count,
				add_count = EXCLUDED.add_count,
				remove_count = EXCLUDED.remove_count,
				volumes = EXCLUDED.volumes,
				fees = EXCLUDED.fees,
				volumes_display = EXCLUDED.volumes_display,
				lp_total_supply = EXCLUDED.lp_total_supply,
				virtual_price_open = EXCLUDED.virtual_price_open,
				virtual_price_close = EXCLUDED.virtual_price_close,
				virtual_price_growth = EXCLUDED.virtual_price_growth,
				apr = EXCLUDED.apr,
				fee_method = EXCLUDED.fee_method,
				updated_at = now()
		`,
			int64(m.ChainID),
			m.PoolAddress,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.SwapCount),
			int64(m.AddCount),
			int64(m.RemoveCount),
			m.Volumes,
			m.Fees,
			m.VolumesDisplay,
			nullable(m.LPTotalSupply),
			m.VirtualPriceOpen,
			m.VirtualPriceClose,
			m.VirtualPriceGrowth,
			m.APR,
			m.FeeMethod,
		)
	}
	return sendBatch(ctx, s.pool, batch, len(metrics))
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

func sendBatch(ctx context.Context, pool *pgxpool.Pool, batch *pgx.Batch, n int) error {
	br := pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
