package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"

	"metrowatch-listener/config"
	"metrowatch-listener/models"
)

// ErrReportNotFound is returned when a status update targets an unknown id.
var ErrReportNotFound = errors.New("report not found")

// Database handles all database operations
type Database struct {
	db *sql.DB
}

// NewDatabase creates a new database connection
func NewDatabase(cfg *config.Config) (*Database, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Infof("database connected to %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)

	return &Database{db: db}, nil
}

// NewDatabaseFromConn wraps an existing connection, used by tests.
func NewDatabaseFromConn(db *sql.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

const reportColumns = `
	r.report_id, r.latitude, r.longitude, r.severity, r.category,
	r.description, r.date, r.time, r.location, r.url, r.upvote, r.status,
	u.name
`

// GetAllReports performs the one-time bulk load: every report joined with
// its author name, in insertion order.
func (d *Database) GetAllReports(ctx context.Context) ([]models.Report, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM reports r
		LEFT JOIN users u ON r.user_id = u.id
		ORDER BY r.seq ASC
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate report rows: %w", err)
	}

	log.Infof("bulk load fetched %d reports", len(reports))
	return reports, nil
}

// GetReport fetches a single report by id.
func (d *Database) GetReport(ctx context.Context, id string) (models.Report, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM reports r
		LEFT JOIN users u ON r.user_id = u.id
		WHERE r.report_id = ?
	`

	row := d.db.QueryRowContext(ctx, query, id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Report{}, ErrReportNotFound
	}
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to fetch report %s: %w", id, err)
	}
	return r, nil
}

// UpdateReportStatus sets a report's lifecycle status and returns the
// updated record. The reconciled collection is not touched here; the change
// flows back through the change stream like any other mutation.
func (d *Database) UpdateReportStatus(ctx context.Context, id, status string) (models.Report, error) {
	result, err := d.db.ExecContext(ctx,
		`UPDATE reports SET status = ? WHERE report_id = ?`, status, id)
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to update report %s: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return models.Report{}, fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		// Either the id is unknown or the status was already set; a fetch
		// tells the two apart.
		if _, fetchErr := d.GetReport(ctx, id); fetchErr != nil {
			return models.Report{}, fetchErr
		}
	}

	return d.GetReport(ctx, id)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(s scanner) (models.Report, error) {
	var r models.Report
	var latitude, longitude, severity, category, description sql.NullString
	var date, timeOfDay, location, url, status, author sql.NullString
	var upvote sql.NullInt64

	err := s.Scan(
		&r.ID, &latitude, &longitude, &severity, &category,
		&description, &date, &timeOfDay, &location, &url, &upvote, &status,
		&author,
	)
	if err != nil {
		return models.Report{}, err
	}

	r.Latitude = latitude.String
	r.Longitude = longitude.String
	r.Severity = severity.String
	r.Category = category.String
	r.Description = description.String
	r.Date = date.String
	r.Time = timeOfDay.String
	r.Location = location.String
	r.ImageURL = url.String
	r.Upvotes = int(upvote.Int64)
	r.Status = status.String
	r.Author = author.String
	return r, nil
}
