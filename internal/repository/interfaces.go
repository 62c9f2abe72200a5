package repository

import (
	"context"
	"time"

	"github.com/jts-services/portal/internal/foldertree"
	"github.com/jts-services/portal/internal/statement"
	"github.com/shopspring/decimal"
)

// FolderRepository provides owner-scoped access to the folders table.
type FolderRepository interface {
	// ListFolders returns every folder the owner has, in creation order.
	ListFolders(ctx context.Context, ownerID string) ([]foldertree.Record, error)

	// GetFolder returns a single folder or ErrNotFound.
	GetFolder(ctx context.Context, ownerID, folderID string) (*Folder, error)

	// CreateFolder inserts a folder and fills in its ID and CreatedAt.
	CreateFolder(ctx context.Context, folder *Folder) error

	// RenameFolder changes a folder's display name.
	RenameFolder(ctx context.Context, ownerID, folderID, name string) error

	// MoveFolder re-parents a folder. A nil parentID moves it to the top level.
	MoveFolder(ctx context.Context, ownerID, folderID string, parentID *string) error

	// DeleteFolder removes a folder and everything below it.
	DeleteFolder(ctx context.Context, ownerID, folderID string) error
}

// FileRepository stores metadata for objects kept in object storage.
type FileRepository interface {
	// ListFiles returns the owner's files in a folder; a nil folderID lists top-level files.
	ListFiles(ctx context.Context, ownerID string, folderID *string) ([]*File, error)

	// ListFilesUnderFolders returns every file whose folder is one of folderIDs.
	ListFilesUnderFolders(ctx context.Context, ownerID string, folderIDs []string) ([]*File, error)

	// GetFile returns a single file or ErrNotFound.
	GetFile(ctx context.Context, ownerID, fileID string) (*File, error)

	// InsertFile records an uploaded object and fills in its ID and CreatedAt.
	InsertFile(ctx context.Context, file *File) error

	// DeleteFile removes the metadata row.
	DeleteFile(ctx context.Context, ownerID, fileID string) error
}

// CustomerRepository reads customer balances and ledger rows.
type CustomerRepository interface {
	// GetCustomer returns the customer with its current balance.
	GetCustomer(ctx context.Context, ownerID, customerID string) (*Customer, error)

	// ListTransactions returns the customer's ledger rows oldest first.
	ListTransactions(ctx context.Context, ownerID, customerID string) ([]statement.Transaction, error)

	// StatementTransactions calls the customer_statement aggregation and
	// returns its rows for the given period. Zero times leave that bound open.
	StatementTransactions(ctx context.Context, ownerID, customerID string, from, to time.Time) ([]statement.Transaction, error)
}

// InvoiceRepository applies payment-status transitions.
type InvoiceRepository interface {
	// ApplyPayment records a payment against an invoice and returns the
	// invoice's resulting status. Replaying a payment already recorded for the
	// same provider and reference changes nothing and reports Applied false.
	ApplyPayment(ctx context.Context, payment *Payment) (PaymentResult, error)
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	// InsertNotification stores n and fills in its ID and CreatedAt. When
	// n.DedupKey is set and the owner already has a notification with that
	// key, nothing is stored and created is false.
	InsertNotification(ctx context.Context, n *Notification) (created bool, err error)
	ListNotifications(ctx context.Context, ownerID string, unreadOnly bool, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, ownerID, notificationID string) error
}

// Folder is a folders row.
type Folder struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Record returns the fields the tree builder works on.
func (f *Folder) Record() foldertree.Record {
	return foldertree.Record{ID: f.ID, Name: f.Name, ParentID: f.ParentID}
}

// File is a files row. ObjectName locates the bytes in the bucket.
type File struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	FolderID    *string   `json:"folder_id"`
	Name        string    `json:"name"`
	ObjectName  string    `json:"object_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Customer is a customers row with its maintained balance.
type Customer struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner_id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone,omitempty"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
}

// InvoiceStatus is the payment status of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid  InvoiceStatus = "unpaid"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// Payment is an incoming payment for an invoice, usually from a provider webhook.
type Payment struct {
	OwnerID   string          `json:"owner_id"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	Provider  string          `json:"provider"`
	PaidAt    time.Time       `json:"paid_at"`
}

// PaymentResult is the outcome of ApplyPayment.
type PaymentResult struct {
	Status  InvoiceStatus
	Applied bool
}

// Notification is a message shown in the portal's notification tray.
type Notification struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Kind      string     `json:"kind"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`

	// DedupKey makes the insert idempotent per owner. Empty means no key.
	DedupKey string `json:"-"`
}
