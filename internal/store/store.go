package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"grocery-orders/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Reader is the read surface shared by the pooled store and open transactions.
type Reader interface {
	GetCartLines(ctx context.Context, userID int64) ([]models.CartLine, error)
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)

	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderForUser(ctx context.Context, id, userID int64) (*models.Order, error)
	GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	CountOrderItems(ctx context.Context, orderIDs []int64) (map[int64]int, error)

	GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	GetFirstPayments(ctx context.Context, orderIDs []int64) (map[int64]models.Payment, error)
	GetCompletedTransactions(ctx context.Context, userID int64) ([]models.Transaction, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
}

// Writer holds the mutations; they are only reachable inside a transaction.
type Writer interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	CreatePayment(ctx context.Context, payment *models.Payment) error

	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	LockPayment(ctx context.Context, id int64) (*models.Payment, error)
	UpdateOrderStatus(ctx context.Context, order *models.Order) error
	UpdatePaymentStatus(ctx context.Context, paymentID int64, status, transactionID string) error

	ClearCart(ctx context.Context, userID int64) (int64, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Tx is a unit of work; everything done through it commits or rolls back together.
type Tx interface {
	Reader
	Writer
}

// Repository is the persistence layer used by the services.
type Repository interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Repository = (*Store)(nil)
	_ Tx         = (*txStore)(nil)
)

type Store struct {
	queries
	db *sqlx.DB
}

// txStore runs the same queries against an open *sqlx.Tx.
type txStore struct {
	queries
}

// queries is bound to either the pool or a transaction.
type queries struct {
	q sqlx.ExtContext
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db), nil
}

// New wraps an existing connection.
func New(db *sqlx.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn inside a transaction, rolling back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&txStore{queries: queries{q: tx}}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
