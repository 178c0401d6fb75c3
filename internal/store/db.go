package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"ticketsales/internal/status"

	"github.com/go-sql-driver/mysql"
	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate&_time_format=sqlite"

type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	Logger       *slog.Logger
}

// Store owns the ticket database connection pool.
type Store struct {
	db      *dbx.DB
	dialect Dialect
	logger  *slog.Logger
}

// Open connects to the ticket database and brings its schema up to date.
func Open(ctx context.Context, opts Options) (*Store, error) {
	dialect := Dialect(strings.ToLower(opts.Driver))
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var dsn string
	switch dialect {
	case DialectSQLite:
		dsn = sqliteDSN(opts.DSN)
	case DialectMySQL:
		var err error
		if dsn, err = mysqlDSN(opts.DSN); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", opts.Driver)
	}

	db, err := dbx.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// SQLite gets one writer connection so transactions never fight over the file lock.
		db.DB().SetMaxOpenConns(1)
	} else {
		maxOpen := opts.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 25
		}
		db.DB().SetMaxOpenConns(maxOpen)
		db.DB().SetMaxIdleConns(maxOpen / 2)
		db.DB().SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.DB().PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", dialect, err)
	}

	s := &Store{db: db, dialect: dialect, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("ticket database ready", "driver", dialect)
	return s, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqlitePragmas
	}
	return "file:" + strings.TrimPrefix(dsn, "file:") + "?" + sqlitePragmas
}

func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("store: parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.DB().PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Queries returns a query set bound to the connection pool, outside any transaction.
func (s *Store) Queries(ctx context.Context) *Queries {
	return &Queries{ctx: ctx, b: s.db, dialect: s.dialect}
}

// InTx runs fn in a single database transaction. Any error returned by fn rolls the
// transaction back.
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) error {
	err := s.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		return fn(&Queries{ctx: ctx, b: tx, dialect: s.dialect})
	})
	if err == nil || isDomainError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return storageErr("transaction", err)
}

// Queries is a set of ticket database statements sharing one builder, which is either
// the pool or an open transaction.
type Queries struct {
	ctx     context.Context
	b       dbx.Builder
	dialect Dialect
}

func (q *Queries) Context() context.Context {
	return q.ctx
}

// forUpdate is the row locking suffix for reads inside a transaction. SQLite transactions
// already hold the database write lock.
func (q *Queries) forUpdate() string {
	if q.dialect == DialectMySQL {
		return " FOR UPDATE"
	}
	return ""
}

func (q *Queries) query(sql string, params dbx.Params) *dbx.Query {
	query := q.b.NewQuery(sql).WithContext(q.ctx)
	if params != nil {
		query.Bind(params)
	}
	return query
}

func (q *Queries) insert(table string, cols dbx.Params) (int64, error) {
	res, err := q.b.Insert(table, cols).WithContext(q.ctx).Execute()
	if err != nil {
		return 0, storageErr("insert "+table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("insert "+table, err)
	}
	return id, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", status.ErrStorage, op, err)
}

var domainErrors = []error{
	status.ErrInvalidQuantity,
	status.ErrInvalidPayment,
	status.ErrFailedPayment,
	status.ErrSoldOut,
	status.ErrCategoryNotFound,
	status.ErrEventNotFound,
	status.ErrNotFound,
	status.ErrNotAdmitted,
	status.ErrNotQueued,
	status.ErrStorage,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// now is the store's timestamp source. Stored times are always UTC.
func now() time.Time {
	return time.Now().UTC()
}
