package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Status of a submitted swap
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"

	DefaultJSONFileName   = ".dust-swap-history.json"
	DefaultSQLiteFileName = ".dust-swap-history.db"
)

// ErrNotFound is returned when no record matches
var ErrNotFound = errors.New("history record not found")

// TokenAmount is one input of a recorded swap, amount in smallest units
type TokenAmount struct {
	Token  string `json:"token"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

// Record is a submitted swap
type Record struct {
	ID              string        `json:"id"`
	TxHash          string        `json:"tx_hash"`
	SourceChain     string        `json:"source_chain"`
	DestChain       string        `json:"dest_chain"`
	Tokens          []TokenAmount `json:"tokens"`
	OutputToken     string        `json:"output_token"`
	Recipient       string        `json:"recipient"`
	EstimatedOutput string        `json:"estimated_output,omitempty"`
	Status          Status        `json:"status"`
	Error           string        `json:"error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewRecord creates a pending record with a fresh id
func NewRecord(txHash, sourceChain, destChain string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:          uuid.New().String(),
		TxHash:      txHash,
		SourceChain: sourceChain,
		DestChain:   destChain,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Store persists swap records
type Store interface {
	Create(record *Record) error
	Get(idOrTxHash string) (*Record, error)
	Update(record *Record) error
	// List returns the newest records first, limit <= 0 means all
	List(limit int) ([]*Record, error)
	Close() error
}

// Open returns the store for backend at path, path defaults to a file in the home directory
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendJSON:
		if path == "" {
			p, err := defaultPath(DefaultJSONFileName)
			if err != nil {
				return nil, err
			}
			path = p
		}
		return NewFileStore(path)
	case BackendSQLite:
		if path == "" {
			p, err := defaultPath(DefaultSQLiteFileName)
			if err != nil {
				return nil, err
			}
			path = p
		}
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown history backend %q", backend)
	}
}

func defaultPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, name), nil
}
