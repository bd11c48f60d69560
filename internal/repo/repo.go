// Package repo holds the goqu/SQLite repositories behind every persistent
// collection: accounts, sessions, links, analytics events, IP lookups and the
// statistics singleton.
package repo

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const dialect = "sqlite3"

const (
	accountsTable   = "accounts"
	sessionsTable   = "sessions"
	linksTable      = "links"
	analyticsTable  = "analytics"
	ipLookupsTable  = "ip_lookups"
	statisticsTable = "statistics"
)

// Page bounds a find-many query. Zero values mean "first page, default size".
type Page struct {
	Page  uint
	Limit uint
}

const defaultPageLimit = 50

func (p Page) apply(ds *goqu.SelectDataset) *goqu.SelectDataset {
	limit := p.Limit
	if limit == 0 {
		limit = defaultPageLimit
	}
	page := max(p.Page, 1)
	return ds.Offset((page - 1) * limit).Limit(limit)
}

// dateRange returns the inclusive bounds on column as separate conditions, so
// that Where joins them with AND. Nil bounds are left open.
func dateRange(column string, start, end *time.Time) []exp.Expression {
	var conds []exp.Expression
	if start != nil {
		conds = append(conds, goqu.C(column).Gte(NewDate(*start)))
	}
	if end != nil {
		conds = append(conds, goqu.C(column).Lte(NewDate(*end)))
	}
	return conds
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsLiteral matches rows whose column contains s as plain text. LIKE
// wildcards in s are escaped.
func containsLiteral(column, s string) exp.Expression {
	return goqu.L("? LIKE ? ESCAPE '!'", goqu.C(column), "%"+likeEscaper.Replace(s)+"%")
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// ParseObjectID converts an opaque event identifier into the native row id.
// It reports false instead of failing for anything that is not a positive integer.
func ParseObjectID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
