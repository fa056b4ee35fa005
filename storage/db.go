package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"stratix/models"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

var db *sql.DB

func InitDB() *sql.DB {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	dbname := os.Getenv("DB_NAME")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")

	connStr := fmt.Sprintf("user=%s password=%s dbname=%s host=%s port=%s sslmode=disable",
		user, password, dbname, host, port)

	var err error
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Session path is low traffic, keep the pool small
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	return db
}

func GetDB() *sql.DB {
	return db
}

// SaveSession inserts a new session row. A user keeps at most one active
// session: any previous ones are removed first.
func SaveSession(db *sql.DB, session *models.Session) error {
	if _, err := db.Exec(`DELETE FROM session WHERE user_id = $1`, session.UserID); err != nil {
		return fmt.Errorf("failed to delete previous sessions: %v", err)
	}

	insertQuery := `INSERT INTO session (session_id, user_id, token, created_at, expires_at)
                    VALUES ($1, $2, $3, $4, $5)`
	_, err := db.Exec(insertQuery, session.SessionID, session.UserID, session.Token, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to insert new session: %v", err)
	}
	return nil
}

func DeleteSession(db *sql.DB, userID int) error {
	_, err := db.Exec(`DELETE FROM session WHERE user_id = $1`, userID)
	return err
}

func CleanupExpiredSessions(db *sql.DB) error {
	threshold := time.Now().Add(-24 * time.Hour)
	_, err := db.Exec(`DELETE FROM session WHERE expires_at < $1`, threshold)
	return err
}

func GetUserByEmail(db *sql.DB, email string) (*models.User, error) {
	var user models.User
	query := `SELECT id, tenant_id, email, password, first_name, last_name, is_admin, suspended
	          FROM users WHERE LOWER(email) = LOWER($1)`

	err := db.QueryRow(query, email).Scan(&user.ID, &user.TenantID, &user.Email, &user.Password,
		&user.FirstName, &user.LastName, &user.IsAdmin, &user.Suspended)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user with email %s not found", email)
		}
		return nil, fmt.Errorf("failed to query user: %v", err)
	}

	return &user, nil
}

// GetUserBySessionID resolves a session id to its user. Suspended accounts
// never validate, even with a live session row.
func GetUserBySessionID(db *sql.DB, sessionID string) (*models.User, error) {
	query := `
		SELECT u.id, u.tenant_id, u.email, u.first_name, u.last_name,
		       u.created_at, u.updated_at, u.last_access, u.is_admin, u.suspended
		FROM session s
		JOIN users u ON s.user_id = u.id
		WHERE s.session_id = $1 AND s.expires_at > NOW()
	`

	var user models.User
	var lastAccess sql.NullTime

	err := db.QueryRow(query, sessionID).Scan(
		&user.ID, &user.TenantID, &user.Email, &user.FirstName, &user.LastName,
		&user.CreatedAt, &user.UpdatedAt, &lastAccess, &user.IsAdmin, &user.Suspended,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New("session not found or expired")
		}
		return nil, err
	}
	if user.Suspended {
		return nil, errors.New("account suspended")
	}

	if lastAccess.Valid {
		user.LastAccess = lastAccess.Time
	}

	return &user, nil
}

func UpdateLastAccess(db *sql.DB, userID int) error {
	_, err := db.Exec(`UPDATE users SET last_access = $1 WHERE id = $2`, time.Now(), userID)
	return err
}
