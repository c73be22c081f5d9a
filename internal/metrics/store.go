// Package metrics is the append-only log of RequestOutcomes plus the
// read-side retrieval the Load Balancer's performance analyzer queries.
// Appends are buffered in memory and flushed in batches, decoupling
// logging from the request path.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/llmweaver/gateway/internal/domain"
	"github.com/llmweaver/gateway/internal/logging"
)

// outcomeRow is the GORM persistence shape for domain.RequestOutcome.
type outcomeRow struct {
	ID           uint `gorm:"primarykey"`
	RequestID    string `gorm:"index"`
	CallerID     int64  `gorm:"index"`
	OwnerID      int64
	ChannelID    int64 `gorm:"index"`
	Model        string `gorm:"index"`
	Status       string
	TokensIn     int
	TokensOut    int
	Cost         float64
	LatencyMS    int64
	ErrorMessage string
	Timestamp    time.Time `gorm:"index"`
}

func (outcomeRow) TableName() string { return "request_outcomes" }

func toRow(o domain.RequestOutcome) outcomeRow {
	return outcomeRow{
		RequestID:    o.RequestID,
		CallerID:     o.CallerID,
		OwnerID:      o.OwnerID,
		ChannelID:    o.ChannelID,
		Model:        o.Model,
		Status:       string(o.Status),
		TokensIn:     o.TokensIn,
		TokensOut:    o.TokensOut,
		Cost:         o.Cost,
		LatencyMS:    o.LatencyMS,
		ErrorMessage: o.ErrorMessage,
		Timestamp:    o.Timestamp,
	}
}

func (r outcomeRow) toDomain() domain.RequestOutcome {
	return domain.RequestOutcome{
		RequestID:    r.RequestID,
		CallerID:     r.CallerID,
		OwnerID:      r.OwnerID,
		ChannelID:    r.ChannelID,
		Model:        r.Model,
		Status:       domain.OutcomeStatus(r.Status),
		TokensIn:     r.TokensIn,
		TokensOut:    r.TokensOut,
		Cost:         r.Cost,
		LatencyMS:    r.LatencyMS,
		ErrorMessage: r.ErrorMessage,
		Timestamp:    r.Timestamp,
	}
}

// Store is the Metrics Store component: Append + Query.
type Store struct {
	db *gorm.DB

	mu         sync.Mutex
	buffer     []outcomeRow
	maxBuffer  int
	flushEvery time.Duration

	// recent mirrors outcomes not yet durably flushed so Query can see
	// them immediately — the Load Balancer's performance analyzer runs
	// against a short rolling window and cannot wait out a flush period.
	recent       []domain.RequestOutcome
	recentWindow time.Duration

	started bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewStore wraps a *gorm.DB, auto-migrating the request_outcomes table
// first when db is non-nil (nil keeps outcomes in memory only; they are
// not persisted). maxBuffer/flushEvery tune
// the async batch-flush behaviour; both have sane defaults when zero.
func NewStore(db *gorm.DB, maxBuffer int, flushEvery time.Duration) (*Store, error) {
	if db != nil {
		if err := db.AutoMigrate(&outcomeRow{}); err != nil {
			return nil, errors.Wrap(err, "migrate request_outcomes")
		}
	}
	if maxBuffer <= 0 {
		maxBuffer = 500
	}
	if flushEvery <= 0 {
		flushEvery = 5 * time.Second
	}
	return &Store{
		db:           db,
		buffer:       make([]outcomeRow, 0, maxBuffer),
		maxBuffer:    maxBuffer,
		flushEvery:   flushEvery,
		recentWindow: time.Hour,
		done:         make(chan struct{}),
	}, nil
}

// Start begins the periodic flush loop. Safe to call once.
func (s *Store) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.flushLoop()
}

// Stop stops the flush loop and performs one final flush.
func (s *Store) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	s.flush()
}

func (s *Store) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.done:
			return
		}
	}
}

// Append adds an outcome to the durable log. It never blocks on I/O and
// never fails silently: persistence errors are logged, but the caller
// continues serving regardless.
func (s *Store) Append(ctx context.Context, o domain.RequestOutcome) {
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}
	row := toRow(o)

	s.mu.Lock()
	s.buffer = append(s.buffer, row)
	s.recent = append(s.recent, o)
	s.pruneRecentLocked()
	shouldFlush := len(s.buffer) >= s.maxBuffer
	s.mu.Unlock()

	if shouldFlush {
		go s.flush()
	}
}

func (s *Store) pruneRecentLocked() {
	cutoff := time.Now().Add(-s.recentWindow)
	i := 0
	for _, o := range s.recent {
		if o.Timestamp.After(cutoff) {
			s.recent[i] = o
			i++
		}
	}
	s.recent = s.recent[:i]
}

func (s *Store) flush() {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	rows := s.buffer
	s.buffer = make([]outcomeRow, 0, s.maxBuffer)
	s.mu.Unlock()

	if s.db == nil {
		return
	}
	if err := s.db.CreateInBatches(rows, 100).Error; err != nil {
		logging.SysError("metrics: failed to flush request outcomes: " + err.Error())
	}
}

// Query returns outcomes for (channelID, model) since the given time,
// unordered. Callers needing percentile analysis sort what they need.
func (s *Store) Query(ctx context.Context, channelID int64, model string, since time.Time) ([]domain.RequestOutcome, error) {
	out := make([]domain.RequestOutcome, 0)

	seen := make(map[string]bool)
	s.mu.Lock()
	for _, o := range s.recent {
		if o.ChannelID == channelID && o.Model == model && !o.Timestamp.Before(since) {
			out = append(out, o)
			if o.RequestID != "" {
				seen[o.RequestID] = true
			}
		}
	}
	s.mu.Unlock()

	if s.db == nil {
		return out, nil
	}
	var rows []outcomeRow
	err := s.db.WithContext(ctx).
		Where("channel_id = ? AND model = ? AND timestamp >= ?", channelID, model, since).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "query request outcomes")
	}
	for _, r := range rows {
		if r.RequestID != "" && seen[r.RequestID] {
			continue
		}
		out = append(out, r.toDomain())
	}
	return out, nil
}
