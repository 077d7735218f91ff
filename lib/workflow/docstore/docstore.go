// Package docstore persists ticket and report workflow state in a bbolt
// database. Workflow identifiers are carried explicitly end to end;
// rendered presentation is never a source of truth.
package docstore

import (
	"fmt"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.etcd.io/bbolt"

	"github.com/wardenkit/warden/lib/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ticketBucket = []byte("tickets")
	reportBucket = []byte("reports")
)

// Store persists workflow aggregates keyed by their workflow id
type Store interface {
	// SaveTicket upserts a ticket
	SaveTicket(ticket *types.Ticket) error

	// GetTicket loads a ticket by id
	GetTicket(id string) (*types.Ticket, error)

	// ActiveTicketForOpener returns the opener's Open or Taken ticket in
	// the community, or nil if none exists
	ActiveTicketForOpener(communityID, openerUserID string) (*types.Ticket, error)

	// SaveReport upserts a report
	SaveReport(report *types.Report) error

	// GetReport loads a report by id
	GetReport(id string) (*types.Report, error)

	// Close releases storage resources
	Close() error
}

// BoltStore implements Store on a bbolt database
type BoltStore struct {
	db *bbolt.DB
}

// InitStore opens the workflow database under the given directory and
// creates the buckets
func InitStore(basePath string) (*BoltStore, error) {
	db, err := bbolt.Open(filepath.Join(basePath, "workflows.db"), 0600, &bbolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open workflow database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(ticketBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(reportBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create workflow buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close releases the underlying database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// put encodes a value into a bucket
func (s *BoltStore) put(bucket []byte, key string, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), encoded)
	})
	if err != nil {
		return fmt.Errorf("%w: failed to write record: %v", types.ErrPersistence, err)
	}
	return nil
}

// get decodes a value from a bucket; found is false for missing keys
func (s *BoltStore) get(bucket []byte, key string, value interface{}) (bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(bucket).Get([]byte(key)); data != nil {
			raw = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: failed to read record: %v", types.ErrPersistence, err)
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, value); err != nil {
		return false, fmt.Errorf("failed to decode record: %w", err)
	}
	return true, nil
}

// SaveTicket upserts a ticket
func (s *BoltStore) SaveTicket(ticket *types.Ticket) error {
	return s.put(ticketBucket, ticket.ID, ticket)
}

// GetTicket loads a ticket by id
func (s *BoltStore) GetTicket(id string) (*types.Ticket, error) {
	var ticket types.Ticket
	found, err := s.get(ticketBucket, id, &ticket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: ticket %s", types.ErrNotFound, id)
	}
	return &ticket, nil
}

// ActiveTicketForOpener scans for the opener's Open or Taken ticket
func (s *BoltStore) ActiveTicketForOpener(communityID, openerUserID string) (*types.Ticket, error) {
	var active *types.Ticket

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(ticketBucket).ForEach(func(_, data []byte) error {
			var ticket types.Ticket
			if err := json.Unmarshal(data, &ticket); err != nil {
				return err
			}
			if ticket.CommunityID == communityID &&
				ticket.OpenerUserID == openerUserID &&
				ticket.Status.Active() {
				active = &ticket
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan tickets: %v", types.ErrPersistence, err)
	}

	return active, nil
}

// SaveReport upserts a report
func (s *BoltStore) SaveReport(report *types.Report) error {
	return s.put(reportBucket, report.ID, report)
}

// GetReport loads a report by id
func (s *BoltStore) GetReport(id string) (*types.Report, error) {
	var report types.Report
	found, err := s.get(reportBucket, id, &report)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: report %s", types.ErrNotFound, id)
	}
	return &report, nil
}
