package repo

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"

	"github.com/marcus7i/ulinks/internal"
)

const accountIDLength = 16

type accountRow struct {
	AccountID string `db:"account_id"`
	IsAdmin   bool   `db:"is_admin"`
	CreatedAt Date   `db:"created_at" goqu:"skipupdate"`
}

func (r *accountRow) toDomain() *internal.Account {
	return &internal.Account{
		AccountID: r.AccountID,
		IsAdmin:   r.IsAdmin,
		CreatedAt: r.CreatedAt.Time(),
	}
}

// AccountQuery filters List. Empty fields are ignored.
type AccountQuery struct {
	Search    string
	StartDate *time.Time
	EndDate   *time.Time
	Page
}

type AccountsRepo struct {
	db         *sql.DB
	generateID func() string
}

func NewAccountsRepo(db *sql.DB) *AccountsRepo {
	return &AccountsRepo{db: db, generateID: GenerateAccountID}
}

// Create registers a new account under a freshly generated id, regenerating on collision.
func (r *AccountsRepo) Create(ctx context.Context, isAdmin bool) (*internal.Account, error) {
	executor := goqu.New(dialect, r.db)

	for {
		accountID := r.generateID()

		exists, err := r.Exists(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if exists {
			log.Debug().Str("account_id", accountID).Msg("account id collision, regenerating")
			continue
		}

		row := accountRow{
			AccountID: accountID,
			IsAdmin:   isAdmin,
			CreatedAt: NewDate(time.Now()),
		}
		_, err = executor.Insert(accountsTable).Rows(row).Executor().ExecContext(ctx)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			log.Error().Err(err).Msg("failed to create account")
			return nil, internal.StorageError("create account", err)
		}

		log.Info().Str("account_id", accountID).Bool("is_admin", isAdmin).Msg("account created")
		return row.toDomain(), nil
	}
}

// Ensure creates the account with the given id if it is missing and makes sure it
// carries the given role. Used to bootstrap an operator account at startup.
func (r *AccountsRepo) Ensure(ctx context.Context, accountID string, isAdmin bool) (*internal.Account, error) {
	executor := goqu.New(dialect, r.db)

	row := accountRow{AccountID: accountID, IsAdmin: isAdmin, CreatedAt: NewDate(time.Now())}
	query := executor.Insert(accountsTable).Rows(row).
		OnConflict(goqu.DoUpdate("account_id", goqu.Record{"is_admin": isAdmin}))
	if _, err := query.Executor().ExecContext(ctx); err != nil {
		return nil, internal.StorageError("ensure account", err)
	}

	return r.Get(ctx, accountID)
}

func (r *AccountsRepo) Get(ctx context.Context, accountID string) (*internal.Account, error) {
	executor := goqu.New(dialect, r.db)

	var row accountRow
	found, err := executor.From(accountsTable).Where(goqu.Ex{"account_id": accountID}).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, internal.StorageError("get account", err)
	}
	if !found {
		return nil, internal.ErrAccountNotFound
	}

	return row.toDomain(), nil
}

func (r *AccountsRepo) Exists(ctx context.Context, accountID string) (bool, error) {
	executor := goqu.New(dialect, r.db)

	count, err := executor.From(accountsTable).Where(goqu.Ex{"account_id": accountID}).CountContext(ctx)
	if err != nil {
		return false, internal.StorageError("check account", err)
	}
	return count > 0, nil
}

// SetAdmin writes the role flag. It returns ErrAccountNotFound for an unknown
// account and ErrNoChange when the account already had that role.
func (r *AccountsRepo) SetAdmin(ctx context.Context, accountID string, isAdmin bool) error {
	account, err := r.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if account.IsAdmin == isAdmin {
		return internal.ErrNoChange
	}

	executor := goqu.New(dialect, r.db)
	_, err = executor.Update(accountsTable).
		Set(goqu.Record{"is_admin": isAdmin}).
		Where(goqu.Ex{"account_id": accountID}).
		Executor().ExecContext(ctx)
	if err != nil {
		return internal.StorageError("set admin", err)
	}

	log.Info().Str("account_id", accountID).Bool("is_admin", isAdmin).Msg("account role changed")
	return nil
}

// List returns one page of accounts, newest first, and the total matching count.
func (r *AccountsRepo) List(ctx context.Context, q AccountQuery) ([]*internal.Account, int64, error) {
	executor := goqu.New(dialect, r.db)

	where := dateRange("created_at", q.StartDate, q.EndDate)
	if q.Search != "" {
		where = append(where, containsLiteral("account_id", q.Search))
	}

	base := executor.From(accountsTable).Where(where...)

	total, err := base.CountContext(ctx)
	if err != nil {
		return nil, 0, internal.StorageError("count accounts", err)
	}

	var rows []accountRow
	err = q.Page.apply(base.Order(goqu.C("created_at").Desc())).ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, 0, internal.StorageError("list accounts", err)
	}

	accounts := make([]*internal.Account, len(rows))
	for i := range rows {
		accounts[i] = rows[i].toDomain()
	}
	return accounts, total, nil
}

// Delete removes the account together with its analytics events, links and
// sessions in one transaction. Deleting an unknown account reports ErrAccountNotFound.
func (r *AccountsRepo) Delete(ctx context.Context, accountID string) error {
	executor := goqu.New(dialect, r.db)

	var deleted int64
	err := executor.WithTx(func(tx *goqu.TxDatabase) error {
		for _, table := range []string{analyticsTable, linksTable, sessionsTable} {
			if _, err := tx.Delete(table).Where(goqu.Ex{"account_id": accountID}).Executor().ExecContext(ctx); err != nil {
				return fmt.Errorf("delete from %s: %w", table, err)
			}
		}

		res, err := tx.Delete(accountsTable).Where(goqu.Ex{"account_id": accountID}).Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("failed to delete account")
		return internal.StorageError("delete account", err)
	}
	if deleted == 0 {
		return internal.ErrAccountNotFound
	}

	log.Info().Str("account_id", accountID).Msg("account deleted")
	return nil
}

// GenerateAccountID returns a random 16-digit numeric string. The account id is
// the only login credential, so it comes from the ChaCha8-seeded global source.
func GenerateAccountID() string {
	const digits = "0123456789"
	id := make([]byte, accountIDLength)
	for i := range id {
		id[i] = digits[rand.IntN(len(digits))]
	}
	return string(id)
}
