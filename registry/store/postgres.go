package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"

	"github.com/rwaswap/rwaswap-core-go/registry"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS registry_releases (
	component       TEXT        NOT NULL,
	version         TEXT        NOT NULL,
	binary_hash     BYTEA       NOT NULL,
	minimum_version TEXT        NOT NULL DEFAULT '',
	changelog_cid   TEXT        NOT NULL DEFAULT '',
	published_at    TIMESTAMPTZ NOT NULL,
	published_by    BYTEA       NOT NULL,
	revoked         BOOLEAN     NOT NULL DEFAULT FALSE,
	revoke_reason   TEXT        NOT NULL DEFAULT '',
	revoked_at      TIMESTAMPTZ,
	revoked_by      BYTEA,
	history_index   BIGINT      NOT NULL,
	PRIMARY KEY (component, version)
);

CREATE TABLE IF NOT EXISTS registry_components (
	component       TEXT   PRIMARY KEY,
	latest_index    BIGINT NOT NULL DEFAULT 0,
	minimum_version TEXT   NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS registry_meta (
	id        SMALLINT PRIMARY KEY CHECK (id = 1),
	nonce     BIGINT NOT NULL,
	signers   BYTEA  NOT NULL,
	threshold INT    NOT NULL
);
`

// Postgres is a registry.Store backed by PostgreSQL. Every Save method runs
// in a single transaction so the operation's rows and the nonce land
// together or not at all.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the store's tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (p *Postgres) SaveRelease(ctx context.Context, release registry.Release, nonce uint64) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		var historyIndex int64
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM registry_releases WHERE component = $1`,
			release.Component,
		).Scan(&historyIndex)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO registry_releases
				(component, version, binary_hash, minimum_version, changelog_cid,
				 published_at, published_by, history_index)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			release.Component, release.Version, release.BinaryHash.Bytes(),
			release.MinimumVersion, release.ChangelogCID,
			release.PublishedAt, release.PublishedBy.Bytes(), historyIndex,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
				return fmt.Errorf("store: %w: %s@%s", registry.ErrDuplicateVersion, release.Component, release.Version)
			}
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO registry_components (component, latest_index)
			VALUES ($1, $2)
			ON CONFLICT (component)
			DO UPDATE SET latest_index = GREATEST(registry_components.latest_index, EXCLUDED.latest_index)`,
			release.Component, historyIndex,
		)
		if err != nil {
			return err
		}
		return p.setNonce(ctx, tx, nonce)
	})
}

func (p *Postgres) SaveRevocation(ctx context.Context, component, version, reason string, revokedBy common.Address, revokedAt time.Time, nonce uint64) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE registry_releases
			SET revoked = TRUE, revoke_reason = $3, revoked_at = $4, revoked_by = $5
			WHERE component = $1 AND version = $2 AND revoked = FALSE`,
			component, version, reason, revokedAt, revokedBy.Bytes(),
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("store: %w: %s@%s", registry.ErrVersionNotFound, component, version)
		}
		return p.setNonce(ctx, tx, nonce)
	})
}

func (p *Postgres) SaveMinimumVersion(ctx context.Context, component, minVersion string, nonce uint64) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO registry_components (component, minimum_version)
			VALUES ($1, $2)
			ON CONFLICT (component) DO UPDATE SET minimum_version = EXCLUDED.minimum_version`,
			component, minVersion,
		)
		if err != nil {
			return err
		}
		return p.setNonce(ctx, tx, nonce)
	})
}

func (p *Postgres) SaveSignerSet(ctx context.Context, signers []common.Address, threshold int, nonce uint64) error {
	packed := make([]byte, 0, len(signers)*common.AddressLength)
	for _, s := range signers {
		packed = append(packed, s.Bytes()...)
	}

	return p.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO registry_meta (id, nonce, signers, threshold)
			VALUES (1, $1, $2, $3)
			ON CONFLICT (id) DO UPDATE
			SET nonce = EXCLUDED.nonce, signers = EXCLUDED.signers, threshold = EXCLUDED.threshold`,
			int64(nonce), packed, threshold,
		)
		return err
	})
}

// Load reads the full persisted state for registry restoration.
func (p *Postgres) Load(ctx context.Context) (*registry.Snapshot, error) {
	snap := &registry.Snapshot{
		History:         make(map[string][]string),
		LatestIndex:     make(map[string]int),
		MinimumVersions: make(map[string]string),
	}

	var packed []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT nonce, signers, threshold FROM registry_meta WHERE id = 1`,
	).Scan(&snap.Nonce, &packed, &snap.Threshold)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: load meta: %w", err)
	}
	for i := 0; i+common.AddressLength <= len(packed); i += common.AddressLength {
		snap.Signers = append(snap.Signers, common.BytesToAddress(packed[i:i+common.AddressLength]))
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT component, version, binary_hash, minimum_version, changelog_cid,
		       published_at, published_by, revoked, revoke_reason, revoked_at, revoked_by
		FROM registry_releases
		ORDER BY component, history_index`)
	if err != nil {
		return nil, fmt.Errorf("store: load releases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			release     registry.Release
			binaryHash  []byte
			publishedBy []byte
			revokedAt   sql.NullTime
			revokedBy   []byte
		)
		if err := rows.Scan(
			&release.Component, &release.Version, &binaryHash,
			&release.MinimumVersion, &release.ChangelogCID,
			&release.PublishedAt, &publishedBy,
			&release.Revoked, &release.RevokeReason, &revokedAt, &revokedBy,
		); err != nil {
			return nil, fmt.Errorf("store: scan release: %w", err)
		}
		release.BinaryHash = common.BytesToHash(binaryHash)
		release.PublishedBy = common.BytesToAddress(publishedBy)
		if revokedAt.Valid {
			release.RevokedAt = revokedAt.Time
		}
		release.RevokedBy = common.BytesToAddress(revokedBy)

		snap.Releases = append(snap.Releases, release)
		snap.History[release.Component] = append(snap.History[release.Component], release.Version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load releases: %w", err)
	}

	components, err := p.db.QueryContext(ctx,
		`SELECT component, latest_index, minimum_version FROM registry_components`)
	if err != nil {
		return nil, fmt.Errorf("store: load components: %w", err)
	}
	defer components.Close()

	for components.Next() {
		var (
			component  string
			latest     int
			minVersion string
		)
		if err := components.Scan(&component, &latest, &minVersion); err != nil {
			return nil, fmt.Errorf("store: scan component: %w", err)
		}
		snap.LatestIndex[component] = latest
		if minVersion != "" {
			snap.MinimumVersions[component] = minVersion
		}
	}
	if err := components.Err(); err != nil {
		return nil, fmt.Errorf("store: load components: %w", err)
	}
	return snap, nil
}

func (p *Postgres) setNonce(ctx context.Context, tx *sql.Tx, nonce uint64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO registry_meta (id, nonce, signers, threshold)
		VALUES (1, $1, ''::bytea, 0)
		ON CONFLICT (id) DO UPDATE SET nonce = EXCLUDED.nonce`,
		int64(nonce),
	)
	return err
}

func (p *Postgres) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
