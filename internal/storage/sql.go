package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xaenox/wheel-bot/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the database file for the sqlite driver.
	Path string
}

func (c DatabaseConfig) dsn() string {
	if c.Driver == DriverSQLite {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// SQLStorage implements Storage on database/sql for postgres and sqlite.
type SQLStorage struct {
	db     *sql.DB
	driver string
	now    func() time.Time
	logger *zap.Logger
}

func NewSQLStorage(config DatabaseConfig, logger *zap.Logger) (*SQLStorage, error) {
	if config.Driver != DriverPostgres && config.Driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}
	if config.Driver == DriverSQLite && config.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sql.Open(config.Driver, config.dsn())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if config.Driver == DriverSQLite {
		// One connection keeps per-connection pragmas (and :memory: databases) stable.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("error configuring sqlite: %w", err)
		}
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &SQLStorage{
		db:     db,
		driver: config.Driver,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	logger.Info("Database ready", zap.String("driver", config.Driver))
	return storage, nil
}

// WithClock replaces the timestamp source, used by tests that need fixed dates.
func (s *SQLStorage) WithClock(now func() time.Time) *SQLStorage {
	s.now = now
	return s
}

func (s *SQLStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations/" + s.driver + ".sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders into the driver's native form.
func (s *SQLStorage) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (s *SQLStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// dbTime scans timestamps from both drivers, including aggregate results
// sqlite hands back as text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *dbTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into timestamp", value)
	}
}

func (t *dbTime) parse(s string) error {
	// Go's time.String() output may carry a monotonic clock suffix.
	if i := strings.Index(s, " m="); i >= 0 {
		s = s[:i]
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	if parsed, err := time.Parse("2006-01-02 15:04:05.999999999 -0700 MST", s); err == nil {
		t.Time, t.Valid = parsed.UTC(), true
		return nil
	}
	return fmt.Errorf("cannot parse timestamp %q", s)
}

const userColumns = "u.id, u.telegram_id, u.username, u.first_name, u.created_at, u.updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, extra ...any) (*models.User, error) {
	var (
		user                 models.User
		username, firstName  sql.NullString
		createdAt, updatedAt dbTime
	)
	dest := append([]any{&user.ID, &user.TelegramID, &username, &firstName, &createdAt, &updatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	user.Username = username.String
	user.FirstName = firstName.String
	user.CreatedAt = createdAt.Time
	user.UpdatedAt = updatedAt.Time
	return &user, nil
}

// User methods
func (s *SQLStorage) GetOrCreateUser(ctx context.Context, telegramID int64, username, firstName string) (*models.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users u WHERE u.telegram_id = ?`)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, telegramID))
	if err == nil {
		return user, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("error querying user: %w", err)
	}

	now := s.now()
	insert := s.rebind(`
		INSERT INTO users (telegram_id, username, first_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (telegram_id) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, insert, telegramID, nullString(username), nullString(firstName), now, now); err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	user, err = scanUser(s.db.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		return nil, fmt.Errorf("error querying created user: %w", err)
	}
	return user, nil
}

func (s *SQLStorage) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users u WHERE u.id = ?`)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}
	return user, nil
}

func (s *SQLStorage) DeleteUser(ctx context.Context, userID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.deleteWheelsTx(ctx, tx, userID, nil); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM user_action_logs WHERE user_id = ?`), userID); err != nil {
			return fmt.Errorf("error deleting action logs: %w", err)
		}
		result, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM users WHERE id = ?`), userID)
		if err != nil {
			return fmt.Errorf("error deleting user: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Wheel methods
func (s *SQLStorage) CreateWheel(ctx context.Context, userID int64, name string, scores []models.Score) (*models.Wheel, error) {
	wheel := &models.Wheel{
		UserID:    userID,
		Name:      name,
		CreatedAt: s.now(),
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := s.rebind(`INSERT INTO wheels (user_id, name, created_at) VALUES (?, ?, ?) RETURNING id`)
		if err := tx.QueryRowContext(ctx, query, userID, name, wheel.CreatedAt).Scan(&wheel.ID); err != nil {
			return fmt.Errorf("error creating wheel: %w", err)
		}

		insertCategory := s.rebind(`
			INSERT INTO wheel_categories (wheel_id, category_name, value, sort_order)
			VALUES (?, ?, ?, ?)`)
		for i, sc := range scores {
			if _, err := tx.ExecContext(ctx, insertCategory, wheel.ID, sc.Category, sc.Value, i); err != nil {
				return fmt.Errorf("error creating wheel category: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wheel, nil
}

func (s *SQLStorage) UpdateWheelAnalysis(ctx context.Context, wheelID int64, analysis string) error {
	result, err := s.db.ExecContext(ctx, s.rebind(`UPDATE wheels SET llm_analysis = ? WHERE id = ?`), analysis, wheelID)
	if err != nil {
		return fmt.Errorf("error updating wheel analysis: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanWheel(row rowScanner) (*models.Wheel, error) {
	var (
		wheel     models.Wheel
		createdAt dbTime
		analysis  sql.NullString
	)
	if err := row.Scan(&wheel.ID, &wheel.UserID, &wheel.Name, &createdAt, &analysis); err != nil {
		return nil, err
	}
	wheel.CreatedAt = createdAt.Time
	if analysis.Valid {
		wheel.LLMAnalysis = &analysis.String
	}
	return &wheel, nil
}

func (s *SQLStorage) GetWheel(ctx context.Context, wheelID int64) (*models.Wheel, error) {
	query := s.rebind(`SELECT id, user_id, name, created_at, llm_analysis FROM wheels WHERE id = ?`)
	wheel, err := scanWheel(s.db.QueryRowContext(ctx, query, wheelID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying wheel: %w", err)
	}
	return wheel, nil
}

func (s *SQLStorage) GetWheelScores(ctx context.Context, wheelID int64) ([]models.Score, error) {
	query := s.rebind(`
		SELECT category_name, value
		FROM wheel_categories
		WHERE wheel_id = ?
		ORDER BY sort_order`)

	rows, err := s.db.QueryContext(ctx, query, wheelID)
	if err != nil {
		return nil, fmt.Errorf("error querying wheel categories: %w", err)
	}
	defer rows.Close()

	var scores []models.Score
	for rows.Next() {
		var sc models.Score
		if err := rows.Scan(&sc.Category, &sc.Value); err != nil {
			return nil, fmt.Errorf("error scanning wheel category: %w", err)
		}
		scores = append(scores, sc)
	}
	return scores, rows.Err()
}

func (s *SQLStorage) ListUserWheels(ctx context.Context, userID int64) ([]*models.Wheel, error) {
	query := s.rebind(`
		SELECT id, user_id, name, created_at, llm_analysis
		FROM wheels
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`)

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying wheels: %w", err)
	}
	defer rows.Close()

	var wheels []*models.Wheel
	for rows.Next() {
		wheel, err := scanWheel(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning wheel: %w", err)
		}
		wheels = append(wheels, wheel)
	}
	return wheels, rows.Err()
}

func (s *SQLStorage) DeleteWheels(ctx context.Context, userID int64, wheelIDs []int64) (int, error) {
	if len(wheelIDs) == 0 {
		return 0, nil
	}
	var deleted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := s.deleteWheelsTx(ctx, tx, userID, wheelIDs)
		deleted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *SQLStorage) DeleteAllWheels(ctx context.Context, userID int64) (int, error) {
	var deleted int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		n, err := s.deleteWheelsTx(ctx, tx, userID, nil)
		deleted = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// deleteWheelsTx removes the user's wheels among wheelIDs (all of them when nil),
// deleting dependent rows first so nothing is left pointing at a missing wheel.
func (s *SQLStorage) deleteWheelsTx(ctx context.Context, tx *sql.Tx, userID int64, wheelIDs []int64) (int, error) {
	query := `SELECT id FROM wheels WHERE user_id = ?`
	args := []any{userID}
	if wheelIDs != nil {
		query += ` AND id IN (` + placeholders(len(wheelIDs)) + `)`
		args = append(args, int64Args(wheelIDs)...)
	}

	rows, err := tx.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("error querying wheels to delete: %w", err)
	}
	var owned []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("error scanning wheel id: %w", err)
		}
		owned = append(owned, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(owned) == 0 {
		return 0, nil
	}

	in := `(` + placeholders(len(owned)) + `)`
	ids := int64Args(owned)

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM wheel_categories WHERE wheel_id IN `+in), ids...); err != nil {
		return 0, fmt.Errorf("error deleting wheel categories: %w", err)
	}
	cmpArgs := append(append([]any{}, ids...), ids...)
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM wheel_comparisons WHERE wheel_id_1 IN `+in+` OR wheel_id_2 IN `+in), cmpArgs...); err != nil {
		return 0, fmt.Errorf("error deleting wheel comparisons: %w", err)
	}
	result, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM wheels WHERE id IN `+in), ids...)
	if err != nil {
		return 0, fmt.Errorf("error deleting wheels: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error getting rows affected: %w", err)
	}
	return int(n), nil
}

func (s *SQLStorage) SaveComparison(ctx context.Context, cmp *models.WheelComparison) error {
	cmp.CreatedAt = s.now()
	var analysis sql.NullString
	if cmp.ComparisonAnalysis != nil {
		analysis = sql.NullString{String: *cmp.ComparisonAnalysis, Valid: true}
	}
	query := s.rebind(`
		INSERT INTO wheel_comparisons (wheel_id_1, wheel_id_2, comparison_analysis, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`)
	if err := s.db.QueryRowContext(ctx, query, cmp.WheelID1, cmp.WheelID2, analysis, cmp.CreatedAt).Scan(&cmp.ID); err != nil {
		return fmt.Errorf("error saving comparison: %w", err)
	}
	return nil
}

func (s *SQLStorage) LogAction(ctx context.Context, entry *models.ActionLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	var wheelID sql.NullInt64
	if entry.WheelID != nil {
		wheelID = sql.NullInt64{Int64: *entry.WheelID, Valid: true}
	}
	query := s.rebind(`
		INSERT INTO user_action_logs (user_id, action, details, wheel_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`)
	err := s.db.QueryRowContext(ctx, query,
		entry.UserID, string(entry.Action), nullString(entry.Details), wheelID, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("error logging action: %w", err)
	}
	return nil
}

// Stats methods
const userGroupBy = "u.id, u.telegram_id, u.username, u.first_name, u.created_at, u.updated_at"

func (s *SQLStorage) ListUsersWithLastAction(ctx context.Context) ([]models.UserActivity, error) {
	query := `
		SELECT ` + userColumns + `, MAX(a.created_at)
		FROM users u
		LEFT JOIN user_action_logs a ON a.user_id = u.id
		GROUP BY ` + userGroupBy + `
		ORDER BY u.created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying users: %w", err)
	}
	defer rows.Close()

	var out []models.UserActivity
	for rows.Next() {
		var last dbTime
		user, err := scanUser(rows, &last)
		if err != nil {
			return nil, fmt.Errorf("error scanning user: %w", err)
		}
		ua := models.UserActivity{User: *user}
		if last.Valid {
			t := last.Time
			ua.LastActionDate = &t
		}
		out = append(out, ua)
	}
	return out, rows.Err()
}

func (s *SQLStorage) NewUsersSince(ctx context.Context, since time.Time) ([]*models.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users u WHERE u.created_at >= ? ORDER BY u.created_at DESC`)

	rows, err := s.db.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("error querying new users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning user: %w", err)
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

func (s *SQLStorage) CountWheelsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM wheels WHERE created_at >= ?`), since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting wheels: %w", err)
	}
	return n, nil
}

func (s *SQLStorage) queryWheelActivity(ctx context.Context, query string, args ...any) ([]models.UserWheelActivity, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("error querying wheel activity: %w", err)
	}
	defer rows.Close()

	var out []models.UserWheelActivity
	for rows.Next() {
		var (
			count int
			last  dbTime
		)
		user, err := scanUser(rows, &count, &last)
		if err != nil {
			return nil, fmt.Errorf("error scanning wheel activity: %w", err)
		}
		out = append(out, models.UserWheelActivity{User: *user, WheelsCount: count, LastWheelDate: last.Time})
	}
	return out, rows.Err()
}

func (s *SQLStorage) UsersWithWheelsSince(ctx context.Context, since time.Time) ([]models.UserWheelActivity, error) {
	return s.queryWheelActivity(ctx, `
		SELECT `+userColumns+`, COUNT(w.id), MAX(w.created_at)
		FROM users u
		JOIN wheels w ON w.user_id = u.id
		WHERE w.created_at >= ?
		GROUP BY `+userGroupBy+`
		ORDER BY MAX(w.created_at) DESC`, since.UTC())
}

func (s *SQLStorage) InactiveUsers(ctx context.Context, from, to time.Time) ([]models.UserWheelActivity, error) {
	return s.queryWheelActivity(ctx, `
		SELECT `+userColumns+`, COUNT(w.id), MAX(w.created_at)
		FROM users u
		JOIN wheels w ON w.user_id = u.id
		GROUP BY `+userGroupBy+`
		HAVING MAX(w.created_at) >= ? AND MAX(w.created_at) < ?
		ORDER BY MAX(w.created_at) ASC`, from.UTC(), to.UTC())
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}
