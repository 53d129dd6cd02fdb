// Package audit keeps a hash-chained trail of device operations.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

var (
	ErrChainBroken      = errors.New("audit chain integrity compromised")
	ErrInvalidEventHash = errors.New("event hash verification failed")
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 1000
)

// Service appends events to the chain and verifies it
type Service struct {
	repo   Repository
	logger *zap.Logger

	mu        sync.Mutex
	lastEvent *models.AuditEvent
	sequence  int64
}

// NewService creates a new audit service, resuming the chain from the last
// stored event
func NewService(ctx context.Context, repo Repository, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:   repo,
		logger: logger,
	}

	lastEvent, err := repo.GetLastEvent(ctx)
	if err != nil {
		return nil, fmt.Errorf("load last audit event: %w", err)
	}
	if lastEvent != nil {
		s.lastEvent = lastEvent
		s.sequence = lastEvent.Sequence
	}
	return s, nil
}

// Record seals event onto the end of the chain and stores it. On a storage
// error the chain position is not consumed.
func (s *Service) Record(ctx context.Context, event *models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prevHash []byte
	if s.lastEvent != nil {
		prevHash = s.lastEvent.EventHash
	}

	// PostgreSQL keeps microseconds; truncate so stored events still verify
	event.Timestamp = event.Timestamp.UTC().Truncate(time.Microsecond)
	event.Seal(s.sequence+1, prevHash)

	if err := s.repo.Append(ctx, event); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	s.sequence = event.Sequence
	s.lastEvent = event

	s.logger.Debug("Audit event recorded",
		zap.Int64("sequence", event.Sequence),
		zap.String("event_type", string(event.EventType)),
		zap.String("device_id", event.DeviceID),
		zap.String("result", string(event.Result)),
	)
	return nil
}

// Log builds and records an event
func (s *Service) Log(ctx context.Context, builder *models.AuditEventBuilder) (*models.AuditEvent, error) {
	event := builder.Event()
	if err := s.Record(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Sequence returns the sequence of the newest event
func (s *Service) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// Query returns one page of events. The limit defaults to 50 and is capped
// at 1000.
func (s *Service) Query(ctx context.Context, query *models.AuditQuery) ([]*models.AuditEvent, int, error) {
	if query.Limit <= 0 {
		query.Limit = defaultQueryLimit
	}
	if query.Limit > maxQueryLimit {
		query.Limit = maxQueryLimit
	}
	if query.Offset < 0 {
		query.Offset = 0
	}
	return s.repo.Query(ctx, query)
}

// VerifyChain checks every event hash and chain link between two sequence
// numbers. A broken chain is reported in the result, not as an error.
func (s *Service) VerifyChain(ctx context.Context, fromSeq, toSeq int64) (*models.AuditChainVerification, error) {
	result := &models.AuditChainVerification{
		Valid:         true,
		FirstSequence: fromSeq,
		LastSequence:  toSeq,
		VerifiedAt:    time.Now().UTC(),
	}

	events, err := s.repo.GetEventRange(ctx, fromSeq, toSeq)
	if err != nil {
		result.Valid = false
		result.Error = err.Error()
		return result, err
	}
	result.EventCount = len(events)

	var prev *models.AuditEvent
	for i, event := range events {
		if !event.Verify() {
			return broken(result, event.Sequence, ErrInvalidEventHash), nil
		}
		linked := true
		switch {
		case i > 0:
			linked = event.VerifyChain(prev)
		case event.Sequence == 1:
			linked = event.VerifyChain(nil)
		}
		if !linked {
			return broken(result, event.Sequence, ErrChainBroken), nil
		}
		prev = event
	}
	return result, nil
}

func broken(result *models.AuditChainVerification, seq int64, err error) *models.AuditChainVerification {
	result.Valid = false
	result.BrokenAt = &seq
	result.Error = fmt.Sprintf("%v at sequence %d", err, seq)
	return result
}
