package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/okian/ekpsearch/internal/adapters/repository/migrations"
	"github.com/okian/ekpsearch/internal/domain/model"
)

// Dialect selects driver, placeholders and migrations.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const columns = `ekp_number, sport_name, sport_composition, date_start, date_end, city,
	discipline, competition_class, country, max_people_count, genders_and_ages, registered`

// SQLStore is a Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration
}

// NewSQLiteStore opens (creating if needed) the SQLite database at path.
// ":memory:" keeps the database in process memory.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Each connection to ":memory:" opens a separate database.
	db.SetMaxOpenConns(1)

	s := &SQLStore{db: db, dialect: DialectSQLite, timeout: o.timeout}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore connects to PostgreSQL through the pgx stdlib driver.
func NewPostgresStore(ctx context.Context, dsn string, opts ...Option) (*SQLStore, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLStore{db: db, dialect: DialectPostgres, timeout: o.timeout}
	pctx, cancel := s.bound(ctx)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %w", ErrUnavailable, err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Dialect reports the SQL dialect in use.
func (s *SQLStore) Dialect() Dialect { return s.dialect }

func (s *SQLStore) migrate(ctx context.Context) error {
	fsys, dir := fs.FS(migrations.SQLite), "sqlite"
	if s.dialect == DialectPostgres {
		fsys, dir = migrations.Postgres, "postgres"
	}
	names, err := fs.Glob(fsys, dir+"/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(names)
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
	}
	return nil
}

// bound applies the per-call timeout.
func (s *SQLStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// rebind rewrites '?' placeholders for PostgreSQL.
func (s *SQLStore) rebind(q string) string {
	if s.dialect != DialectPostgres {
		return q
	}
	var (
		b strings.Builder
		n int
	)
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (model.CompetitionRecord, error) {
	var (
		r                model.CompetitionRecord
		start, end, tags string
	)
	if err := row.Scan(&r.EKPNumber, &r.SportName, &r.SportComposition, &start, &end, &r.City,
		&r.Discipline, &r.CompetitionClass, &r.Country, &r.MaxPeopleCount, &tags, &r.Registered); err != nil {
		return r, err
	}
	var err error
	if r.DateStart, err = model.ParseDate(start); err != nil {
		return r, fmt.Errorf("ekp %q date_start: %w", r.EKPNumber, err)
	}
	if r.DateEnd, err = model.ParseDate(end); err != nil {
		return r, fmt.Errorf("ekp %q date_end: %w", r.EKPNumber, err)
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &r.GendersAndAges); err != nil {
			return r, fmt.Errorf("ekp %q genders_and_ages: %w", r.EKPNumber, err)
		}
	}
	return r, nil
}

func (s *SQLStore) FetchAll(ctx context.Context) ([]model.CompetitionRecord, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM competitions ORDER BY ekp_number`)
	if err != nil {
		return nil, fmt.Errorf("query competitions: %w", err)
	}
	defer rows.Close()

	var out []model.CompetitionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan competition: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) FetchByKey(ctx context.Context, ekp string) (model.CompetitionRecord, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+columns+` FROM competitions WHERE ekp_number = ?`), ekp)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("ekp %q: %w", ekp, ErrNotFound)
	}
	if err != nil {
		return r, fmt.Errorf("query competition: %w", err)
	}
	return r, nil
}

func (s *SQLStore) Insert(ctx context.Context, rec model.CompetitionRecord) (bool, error) {
	if strings.TrimSpace(rec.EKPNumber) == "" {
		return false, fmt.Errorf("%w: empty ekp number", ErrInvalidRecord)
	}
	tags := rec.GendersAndAges
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return false, fmt.Errorf("marshal genders_and_ages: %w", err)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO competitions (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ekp_number) DO NOTHING`),
		rec.EKPNumber, rec.SportName, rec.SportComposition, rec.DateStart.String(), rec.DateEnd.String(),
		rec.City, rec.Discipline, rec.CompetitionClass, rec.Country, rec.MaxPeopleCount,
		string(encoded), rec.Registered,
	)
	if err != nil {
		return false, fmt.Errorf("insert competition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert competition: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) Delete(ctx context.Context, ekp string) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM competitions WHERE ekp_number = ?`), ekp)
	if err != nil {
		return false, fmt.Errorf("delete competition: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete competition: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM competitions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count competitions: %w", err)
	}
	return n, nil
}

func (s *SQLStore) SportNames(ctx context.Context) ([]string, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT sport_name FROM competitions WHERE sport_name <> '' ORDER BY sport_name`)
	if err != nil {
		return nil, fmt.Errorf("query sport names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan sport name: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Collations differ between engines; keep byte order everywhere.
	slices.Sort(names)
	return names, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
