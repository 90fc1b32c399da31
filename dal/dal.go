package dal

import (
	"birthdaybot/dates"
	"birthdaybot/models"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq" // postgres driver for database/sql
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "birthdays"

// Store persists birthday records in a single table keyed by user id.
type Store struct {
	db    *gorm.DB
	table string
}

// MemberChange describes what EnsureMember did.
type MemberChange int

// Possible outcomes of EnsureMember.
const (
	MemberUnchanged MemberChange = iota
	MemberAdded
	MemberRenamed
)

// BirthdayUpdate carries the fields written by SetBirthday. Empty names keep
// whatever is stored.
type BirthdayUpdate struct {
	UserID      int64
	DisplayName string
	Birthday    time.Time
	FirstName   string
	LastName    string
}

// InitDB opens a database connection for the given driver and migrates the
// birthday table.
func InitDB(driver, dsn, table string) (*Store, error) {
	dialector, err := openDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(
			log.New(os.Stderr, "", log.LstdFlags),
			logger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  logger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	log.Printf("Connected to %v database.", driverName(driver))

	if driverName(driver) == DriverSQLite {
		// SQLite allows a single writer.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return New(db, table)
}

// New wraps an open gorm connection and migrates the birthday table.
func New(db *gorm.DB, table string) (*Store, error) {
	if table == "" {
		table = DefaultTable
	}

	if err := db.Table(table).AutoMigrate(&models.BirthdayRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate %v: %w", table, err)
	}
	log.Printf("Migrated table %v.", table)

	return &Store{db: db, table: table}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func driverName(driver string) string {
	if driver == "" {
		return DriverSQLite
	}
	return strings.ToLower(driver)
}

func openDialector(driver, dsn string) (gorm.Dialector, error) {
	switch driverName(driver) {
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	case DriverPostgres:
		conn, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres connection: %w", err)
		}
		return postgres.New(postgres.Config{Conn: conn}), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (s *Store) query(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

// run executes fn, retrying once on failure. Errors that persist are
// wrapped in a StorageError.
func (s *Store) run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	err := fn(s.query(ctx))
	if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if ctx.Err() == nil {
		log.Printf("Retrying %v after storage error: %v", op, err)
		err = fn(s.query(ctx))
	}
	if err != nil {
		return &StorageError{Op: op, Err: err}
	}
	return nil
}

// Upsert inserts the record or replaces every mutable field of the stored one.
func (s *Store) Upsert(ctx context.Context, record models.BirthdayRecord) error {
	return s.run(ctx, "upsert", func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"display_name",
				"firstname",
				"lastname",
				"birthday",
				"notify_preference",
				"updated_at",
			}),
		}).Create(&record).Error
	})
}

// SetBirthday writes the birthday and any supplied names without touching
// the notification preference.
func (s *Store) SetBirthday(ctx context.Context, update BirthdayUpdate) error {
	birthday := dates.Civil(update.Birthday)
	record := models.BirthdayRecord{
		UserID:      update.UserID,
		DisplayName: update.DisplayName,
		FirstName:   strings.TrimSpace(update.FirstName),
		LastName:    strings.TrimSpace(update.LastName),
		Birthday:    &birthday,
	}

	columns := []string{"birthday", "updated_at"}
	if record.DisplayName != "" {
		columns = append(columns, "display_name")
	}
	if record.FirstName != "" {
		columns = append(columns, "firstname")
	}
	if record.LastName != "" {
		columns = append(columns, "lastname")
	}

	return s.run(ctx, "set birthday", func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).Create(&record).Error
	})
}

// ClearBirthday removes the stored birthday. The record itself is kept.
func (s *Store) ClearBirthday(ctx context.Context, userID int64) error {
	err := s.run(ctx, "clear birthday", func(tx *gorm.DB) error {
		res := tx.Where("user_id = ?", userID).Update("birthday", nil)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Get gets the record for the given user.
func (s *Store) Get(ctx context.Context, userID int64) (*models.BirthdayRecord, error) {
	var record models.BirthdayRecord
	err := s.run(ctx, "get", func(tx *gorm.DB) error {
		return tx.Where("user_id = ?", userID).Take(&record).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// All returns every record ordered by display name, then user id.
func (s *Store) All(ctx context.Context) ([]models.BirthdayRecord, error) {
	var records []models.BirthdayRecord
	err := s.run(ctx, "list all", func(tx *gorm.DB) error {
		return tx.Order("display_name").Order("user_id").Find(&records).Error
	})
	return records, err
}

func (s *Store) withBirthday(ctx context.Context) ([]models.BirthdayRecord, error) {
	var records []models.BirthdayRecord
	err := s.run(ctx, "list birthdays", func(tx *gorm.DB) error {
		return tx.Where("birthday IS NOT NULL").Order("user_id").Find(&records).Error
	})
	return records, err
}

// Today returns every record whose birthday recurs on ref. Records without a
// birthday are never included.
func (s *Store) Today(ctx context.Context, ref time.Time) ([]models.BirthdayRecord, error) {
	records, err := s.withBirthday(ctx)
	if err != nil {
		return nil, err
	}

	var today []models.BirthdayRecord
	for _, record := range records {
		if dates.IsBirthday(*record.Birthday, ref) {
			today = append(today, record)
		}
	}
	return today, nil
}

// Upcoming returns up to limit records ordered by days until their next
// birthday, ties broken by user id. A limit of zero or less returns all.
func (s *Store) Upcoming(ctx context.Context, ref time.Time, limit int) ([]models.Upcoming, error) {
	records, err := s.withBirthday(ctx)
	if err != nil {
		return nil, err
	}

	upcoming := make([]models.Upcoming, 0, len(records))
	for _, record := range records {
		upcoming = append(upcoming, models.Upcoming{
			Record:    record,
			DaysUntil: dates.DaysUntil(*record.Birthday, ref),
		})
	}

	sort.SliceStable(upcoming, func(i, j int) bool {
		if upcoming[i].DaysUntil != upcoming[j].DaysUntil {
			return upcoming[i].DaysUntil < upcoming[j].DaysUntil
		}
		return upcoming[i].Record.UserID < upcoming[j].Record.UserID
	})

	if limit > 0 && len(upcoming) > limit {
		upcoming = upcoming[:limit]
	}
	return upcoming, nil
}

// OptedIn returns the ids of every user with notifications enabled.
func (s *Store) OptedIn(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.run(ctx, "list opted in", func(tx *gorm.DB) error {
		return tx.Where("notify_preference = ?", true).Order("user_id").Pluck("user_id", &ids).Error
	})
	return ids, err
}

// SetPreference stores the notification preference, creating a record
// without birthday if the user is unknown.
func (s *Store) SetPreference(ctx context.Context, userID int64, enabled bool) error {
	return s.run(ctx, "set preference", func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"notify_preference", "updated_at"}),
		}).Create(&models.BirthdayRecord{
			UserID:           userID,
			NotifyPreference: enabled,
		}).Error
	})
}

// UpdateDisplayName changes only the display name of an existing record.
func (s *Store) UpdateDisplayName(ctx context.Context, userID int64, name string) error {
	return s.run(ctx, "update display name", func(tx *gorm.DB) error {
		return tx.Where("user_id = ?", userID).Update("display_name", name).Error
	})
}

// EnsureMember makes sure a record exists for the member and that its
// display name is current.
func (s *Store) EnsureMember(ctx context.Context, userID int64, name string) (MemberChange, error) {
	record, err := s.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		err = s.run(ctx, "add member", func(tx *gorm.DB) error {
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"display_name", "updated_at"}),
			}).Create(&models.BirthdayRecord{UserID: userID, DisplayName: name}).Error
		})
		if err != nil {
			return MemberUnchanged, err
		}
		return MemberAdded, nil
	}
	if err != nil {
		return MemberUnchanged, err
	}

	if name == "" || record.DisplayName == name {
		return MemberUnchanged, nil
	}
	if err := s.UpdateDisplayName(ctx, userID, name); err != nil {
		return MemberUnchanged, err
	}
	return MemberRenamed, nil
}
