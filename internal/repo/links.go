package repo

import (
	"context"
	"database/sql"
	"math/rand/v2"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"

	"github.com/marcus7i/ulinks/internal"
)

const shortIDLength = 8

type linkRow struct {
	ShortID      string `db:"short_id"`
	TargetURL    string `db:"target_url"`
	AccountID    string `db:"account_id"`
	CreatedAt    Date   `db:"created_at" goqu:"skipupdate"`
	LastModified Date   `db:"last_modified"`
}

func (r *linkRow) toDomain() *internal.Link {
	return &internal.Link{
		ShortID:      r.ShortID,
		TargetURL:    r.TargetURL,
		AccountID:    r.AccountID,
		CreatedAt:    r.CreatedAt.Time(),
		LastModified: r.LastModified.Time(),
	}
}

type LinksRepo struct {
	db         *sql.DB
	generateID func() string
}

func NewLinksRepo(db *sql.DB) *LinksRepo {
	return &LinksRepo{db: db, generateID: GenerateShortID}
}

// Create stores a link under a fresh short id. Generated ids are checked against
// the registry first and regenerated on collision; a unique violation on insert
// (a concurrent writer took the same id) also regenerates.
func (r *LinksRepo) Create(ctx context.Context, accountID, targetURL string) (*internal.Link, error) {
	executor := goqu.New(dialect, r.db)

	log.Debug().Str("account_id", accountID).Str("url", targetURL).Msg("creating link")

	for {
		shortID := r.generateID()

		count, err := executor.From(linksTable).Where(goqu.Ex{"short_id": shortID}).CountContext(ctx)
		if err != nil {
			return nil, internal.StorageError("check short id", err)
		}
		if count > 0 {
			log.Debug().Str("short_id", shortID).Msg("short id collision, regenerating")
			continue
		}

		now := NewDate(time.Now())
		row := linkRow{
			ShortID:      shortID,
			TargetURL:    targetURL,
			AccountID:    accountID,
			CreatedAt:    now,
			LastModified: now,
		}
		_, err = executor.Insert(linksTable).Rows(row).Executor().ExecContext(ctx)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("short_id", shortID).Msg("failed to create link")
			return nil, internal.StorageError("create link", err)
		}

		log.Info().Str("short_id", shortID).Str("account_id", accountID).Msg("link created successfully")
		return row.toDomain(), nil
	}
}

// Resolve looks a link up by short id alone, for redirects.
func (r *LinksRepo) Resolve(ctx context.Context, shortID string) (*internal.Link, error) {
	return r.find(ctx, goqu.Ex{"short_id": shortID})
}

// Get returns the link only if accountID owns it.
func (r *LinksRepo) Get(ctx context.Context, accountID, shortID string) (*internal.Link, error) {
	return r.find(ctx, goqu.Ex{"short_id": shortID, "account_id": accountID})
}

func (r *LinksRepo) find(ctx context.Context, where goqu.Ex) (*internal.Link, error) {
	executor := goqu.New(dialect, r.db)

	var row linkRow
	found, err := executor.From(linksTable).Where(where).ScanStructContext(ctx, &row)
	if err != nil {
		log.Error().Err(err).Interface("where", where).Msg("failed to fetch link")
		return nil, internal.StorageError("get link", err)
	}
	if !found {
		return nil, internal.ErrLinkNotFound
	}
	return row.toDomain(), nil
}

func (r *LinksRepo) List(ctx context.Context, accountID string) ([]*internal.Link, error) {
	executor := goqu.New(dialect, r.db)

	var rows []linkRow
	err := executor.From(linksTable).
		Where(goqu.Ex{"account_id": accountID}).
		Order(goqu.C("created_at").Desc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, internal.StorageError("list links", err)
	}

	links := make([]*internal.Link, len(rows))
	for i := range rows {
		links[i] = rows[i].toDomain()
	}
	return links, nil
}

func (r *LinksRepo) Count(ctx context.Context) (int64, error) {
	executor := goqu.New(dialect, r.db)

	count, err := executor.From(linksTable).CountContext(ctx)
	if err != nil {
		return 0, internal.StorageError("count links", err)
	}
	return count, nil
}

// Update changes the target and stamps last_modified.
func (r *LinksRepo) Update(ctx context.Context, accountID, shortID, targetURL string) error {
	executor := goqu.New(dialect, r.db)

	res, err := executor.Update(linksTable).
		Set(goqu.Record{"target_url": targetURL, "last_modified": NewDate(time.Now())}).
		Where(goqu.Ex{"short_id": shortID, "account_id": accountID}).
		Executor().ExecContext(ctx)
	if err != nil {
		return internal.StorageError("update link", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return internal.StorageError("update link", err)
	}
	if n == 0 {
		return internal.ErrLinkNotFound
	}
	return nil
}

// Delete removes the link and its analytics events.
func (r *LinksRepo) Delete(ctx context.Context, accountID, shortID string) error {
	executor := goqu.New(dialect, r.db)

	var deleted int64
	err := executor.WithTx(func(tx *goqu.TxDatabase) error {
		_, err := tx.Delete(analyticsTable).
			Where(goqu.Ex{"link_id": shortID, "account_id": accountID}).
			Executor().ExecContext(ctx)
		if err != nil {
			return err
		}

		res, err := tx.Delete(linksTable).
			Where(goqu.Ex{"short_id": shortID, "account_id": accountID}).
			Executor().ExecContext(ctx)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("short_id", shortID).Msg("failed to delete link")
		return internal.StorageError("delete link", err)
	}
	if deleted == 0 {
		return internal.ErrLinkNotFound
	}

	log.Info().Str("short_id", shortID).Str("account_id", accountID).Msg("link deleted")
	return nil
}

func GenerateShortID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	id := make([]byte, shortIDLength)
	for i := range id {
		id[i] = charset[rand.IntN(len(charset))]
	}
	return string(id)
}
