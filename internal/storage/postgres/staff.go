package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/counter-checkout/internal/domain/staff"
)

const (
	getStaffByKeyHashSQL = `SELECT id, name, key_hash, scopes
		FROM staff_keys WHERE key_hash = $1 AND active = TRUE`

	upsertStaffKeySQL = `INSERT INTO staff_keys (id, key_hash, name, scopes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			name = EXCLUDED.name,
			scopes = EXCLUDED.scopes,
			active = TRUE`
)

var _ staff.Repository = (*StaffRepository)(nil)

// StaffRepository resolves operator API keys backed by PostgreSQL.
type StaffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository returns a StaffRepository that uses the given pool.
func NewStaffRepository(pool *pgxpool.Pool) *StaffRepository {
	return &StaffRepository{pool: pool}
}

// FindByKeyHash looks up the operator owning an active key by its
// HMAC-SHA256 hash.
func (r *StaffRepository) FindByKeyHash(ctx context.Context, hash string) (*staff.Member, error) {
	var (
		m      staff.Member
		scopes []string
	)
	err := r.pool.QueryRow(ctx, getStaffByKeyHashSQL, hash).Scan(&m.ID, &m.Name, &m.KeyHash, &scopes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, staff.ErrNotFound
		}
		return nil, fmt.Errorf("finding staff key by hash: %w", err)
	}

	caps, err := staff.ParseSet(scopes)
	if err != nil {
		return nil, fmt.Errorf("staff %q: %w", m.ID, err)
	}
	m.Capabilities = caps
	return &m, nil
}

// SaveKey stores an operator key hash with its scope names.
func (r *StaffRepository) SaveKey(ctx context.Context, id, hash, name string, scopes []string) error {
	if _, err := staff.ParseSet(scopes); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, upsertStaffKeySQL, id, hash, name, scopes); err != nil {
		return fmt.Errorf("saving staff key %q: %w", id, err)
	}
	return nil
}
