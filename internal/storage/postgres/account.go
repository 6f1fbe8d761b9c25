package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrAccountNotFound is returned when no account matches the username.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when the username is already taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidCredentials is returned when a password or account id does
	// not match the stored account.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Account is one row of the accounts table.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// AccountRepository stores player accounts and answers the login credential
// check.
type AccountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository creates an AccountRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = "id, username, password_hash, created_at"

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CreatedAt)
	return a, err
}

// Create inserts a new account with a bcrypt-hashed password.
//
// Precondition: username and password must be non-empty.
// Postcondition: Returns the created Account with ID and CreatedAt set, or
// ErrAccountExists if the username is taken.
func (r *AccountRepository) Create(ctx context.Context, username, password string) (Account, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, fmt.Errorf("hashing password: %w", err)
	}

	row := r.db.QueryRow(ctx,
		"INSERT INTO accounts (username, password_hash) VALUES ($1, $2) RETURNING "+accountColumns,
		username, hash)
	acct, err := scanAccount(row)
	if err != nil {
		if uniqueViolation(err) {
			return Account{}, ErrAccountExists
		}
		return Account{}, fmt.Errorf("inserting account %q: %w", username, err)
	}
	return acct, nil
}

// GetByUsername retrieves an account by username.
//
// Postcondition: Returns the Account or ErrAccountNotFound.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (Account, error) {
	row := r.db.QueryRow(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE username = $1", username)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("querying account %q: %w", username, err)
	}
	return acct, nil
}

// Authenticate verifies a username/password pair.
//
// Postcondition: Returns the Account on success, ErrAccountNotFound for an
// unknown username, or ErrInvalidCredentials for a wrong password.
func (r *AccountRepository) Authenticate(ctx context.Context, username, password string) (Account, error) {
	acct, err := r.GetByUsername(ctx, username)
	if err != nil {
		return Account{}, err
	}
	if !CheckPassword(password, acct.PasswordHash) {
		return Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// Verify checks that the username exists and owns the given account id. This
// is the credential check behind login: the client presents the id it was
// issued at account creation, and the pair must match.
//
// Postcondition: Returns nil on a match, ErrAccountNotFound for an unknown
// username, or ErrInvalidCredentials on an id mismatch.
func (r *AccountRepository) Verify(ctx context.Context, username string, accountID int64) error {
	acct, err := r.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if acct.ID != accountID {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword creates a bcrypt hash of the given password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword reports whether the plaintext password matches the hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// uniqueViolation reports whether err is SQLSTATE 23505.
func uniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}
