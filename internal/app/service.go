// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
//
// The service serializes access to the ledger behind one mutex, keeps the
// rank index in sync with every stake-changing operation, and fans committed
// ledger events out through the event bus to the delivery workers.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/holiman/uint256"
	eventqueue "github.com/okian/tally/internal/adapters/mq/queue"
	workerpool "github.com/okian/tally/internal/adapters/mq/worker"
	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/internal/domain/dedupe"
	"github.com/okian/tally/internal/domain/ledger"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// Service owns the ledger and its supporting adapters.
type Service struct {
	mu sync.Mutex

	// Core components
	ledger  *ledger.Ledger
	rank    *repository.RankStore
	deduper dedupe.Deduper
	bus     eventqueue.Queue
	pool    *workerpool.Pool

	// Configuration
	params      ledger.Params
	startClock  uint64
	owner       string
	maintainer  string
	workerCount int
	queueSize   int
	dedupeSize  int
	sinks       []workerpool.Sink

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithParams sets the ledger parameter set.
func WithParams(p ledger.Params) Option {
	return func(s *Service) {
		s.params = p
	}
}

// WithStartClock sets the logical clock value the ledger boots at.
func WithStartClock(clock uint64) Option {
	return func(s *Service) {
		s.startClock = clock
	}
}

// WithOwner sets the administrative owner account.
func WithOwner(account string) Option {
	return func(s *Service) {
		s.owner = account
	}
}

// WithMaintainer sets the rating-submission account.
func WithMaintainer(account string) Option {
	return func(s *Service) {
		s.maintainer = account
	}
}

// WithWorkerCount sets the number of event delivery workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the event bus.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the request deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSinks registers additional event sinks beside the audit log.
func WithSinks(sinks ...workerpool.Sink) Option {
	return func(s *Service) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service with default configuration. The ledger itself is
// built on Start so that parameter errors surface there.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU() * 2,
		queueSize:   100_000,
		dedupeSize:  50_000,
		owner:       "owner",
		maintainer:  "maintainer",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the ledger and its adapters and launches the delivery workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting ledger service...")

	s.rank = repository.NewRankStore()
	s.deduper = dedupe.New(dedupe.WithMaxSize(s.dedupeSize))
	s.bus = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	sinks := append([]workerpool.Sink{&auditSink{log: s.logger.Named("audit")}}, s.sinks...)
	s.pool = workerpool.NewPool(s.workerCount, s.bus, sinks...)
	s.pool.Start(ctx)

	led, err := ledger.New(s.params, s.startClock,
		ledger.WithOwner(s.owner),
		ledger.WithMaintainer(s.maintainer),
		ledger.WithEmitter(func(ev ledger.Event) {
			if !s.bus.Enqueue(context.Background(), ev) {
				s.logger.Warn(context.Background(), "event dropped",
					logger.String("kind", string(ev.Kind)))
			}
		}),
	)
	if err != nil {
		s.pool.Stop()
		_ = s.bus.Close()
		return err
	}
	s.ledger = led

	s.started = true
	s.logger.Info(ctx, "ledger service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Uint64("clock", led.Clock()),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping ledger service...")

	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.pool != nil {
		s.pool.Stop()
	}

	s.started = false
	s.logger.Info(ctx, "ledger service stopped")
}

// auditSink writes every committed ledger event to the log.
type auditSink struct {
	log logger.Logger
}

func (a *auditSink) HandleEvent(ctx context.Context, ev workerpool.Event) {
	a.log.Debug(ctx, "ledger event",
		logger.String("kind", string(ev.Kind)),
		logger.Uint64("clock", ev.Clock),
		logger.String("account", ev.Account),
		logger.Uint64("entity", uint64(ev.Entity)),
		logger.Uint64("stake", uint64(ev.Stake)),
		logger.Uint64("epoch", uint64(ev.Epoch)),
	)
}

// track measures one operation for the duration histogram.
func track(op string) func() {
	start := time.Now()
	return func() {
		metrics.RecordLedgerOpDuration(op, float64(time.Since(start).Microseconds())/1000.0)
	}
}

// SeenAndRecord atomically checks whether a request id was seen and records
// it if not. Used for replay protection on submission endpoints.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordDuplicateRequest()
	}
	return seen
}

// Unrecord removes a request id from the seen list, allowing a retry after a
// rejected operation.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// DedupeSize returns the number of request ids currently tracked.
func (s *Service) DedupeSize() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// syncRank mirrors one entity's aggregate stake into the rank index. Callers
// hold the service mutex.
func (s *Service) syncRank(ctx context.Context, id ledger.EntityID) {
	e, err := s.ledger.Entity(id)
	if err != nil {
		return
	}
	switch e.Status {
	case ledger.StatusDeregistered, ledger.StatusNone:
		s.rank.Remove(ctx, uint64(id))
	default:
		s.rank.Upsert(ctx, uint64(id), e.StakeAmount)
	}
	metrics.UpdateRankedEntities(s.rank.Count(ctx))
}

// RegisterEntity registers a new entity with its initial stake.
func (s *Service) RegisterEntity(ctx context.Context, reg ledger.Registration, initialStake *uint256.Int) (ledger.EntityID, error) {
	defer track("register")()
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.ledger.Register(reg, initialStake)
	if err != nil {
		return 0, err
	}
	metrics.RecordEntityRegistered()
	metrics.UpdateEntityCount(s.ledger.EntityCount())
	metrics.UpdateStakeCount(s.ledger.StakeCount())
	s.syncRank(ctx, id)
	return id, nil
}

// UpdateEntity applies owner-editable field changes.
func (s *Service) UpdateEntity(ctx context.Context, caller string, id ledger.EntityID, upd ledger.EntityUpdate) error {
	defer track("update_entity")()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.UpdateEntity(caller, id, upd); err != nil {
		return err
	}
	s.syncRank(ctx, id)
	return nil
}

// DeregisterEntity removes an entity from competition. Terminal.
func (s *Service) DeregisterEntity(ctx context.Context, caller string, id ledger.EntityID) error {
	defer track("deregister")()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.Deregister(caller, id); err != nil {
		return err
	}
	s.syncRank(ctx, id)
	return nil
}

// SetVerified toggles the maintainer-controlled verification flag.
func (s *Service) SetVerified(ctx context.Context, caller string, id ledger.EntityID, verified bool) error {
	defer track("set_verified")()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.SetVerified(caller, id, verified); err != nil {
		return err
	}
	s.syncRank(ctx, id)
	return nil
}

// Entity returns a copy of one entity.
func (s *Service) Entity(ctx context.Context, id ledger.EntityID) (ledger.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Entity(id)
}

// EntityByAddress resolves an entity by its external address.
func (s *Service) EntityByAddress(ctx context.Context, addr string) (ledger.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.EntityByAddress(addr)
}

// CreateStake opens a new stake position against an entity.
func (s *Service) CreateStake(ctx context.Context, caller string, entity ledger.EntityID, amount *uint256.Int) (ledger.StakeID, error) {
	defer track("stake")()
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.ledger.CreateStake(caller, entity, amount)
	if err != nil {
		return 0, err
	}
	metrics.RecordStakeOpened()
	metrics.UpdateStakeCount(s.ledger.StakeCount())
	s.syncRank(ctx, entity)
	return id, nil
}

// CloseStake closes an open stake, starting the withdrawal delay.
func (s *Service) CloseStake(ctx context.Context, caller string, id ledger.StakeID) error {
	defer track("close_stake")()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.CloseStake(caller, id); err != nil {
		return err
	}
	metrics.RecordStakeClosed()
	if st, err := s.ledger.Stake(id); err == nil {
		s.syncRank(ctx, st.Entity)
	}
	return nil
}

// WithdrawStake releases a closed stake after the withdrawal delay.
func (s *Service) WithdrawStake(ctx context.Context, caller string, id ledger.StakeID) error {
	defer track("withdraw_stake")()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.WithdrawStake(caller, id); err != nil {
		return err
	}
	metrics.RecordStakeWithdrawn()
	return nil
}

// Stake returns a copy of one stake position.
func (s *Service) Stake(ctx context.Context, id ledger.StakeID) (ledger.Stake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Stake(id)
}

// UnstakeableAmount totals a staker's open positions against one entity.
func (s *Service) UnstakeableAmount(ctx context.Context, staker string, entity ledger.EntityID) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.UnstakeableAmount(staker, entity)
}

// Claim pays out every matured, unclaimed epoch reward for a stake.
func (s *Service) Claim(ctx context.Context, caller string, id ledger.StakeID) (*uint256.Int, error) {
	defer track("claim")()
	s.mu.Lock()
	defer s.mu.Unlock()

	total, err := s.ledger.Claim(caller, id)
	if err != nil {
		return nil, err
	}
	metrics.RecordRewardClaimed()
	return total, nil
}

// ClaimableAmount previews what Claim would pay without mutating anything.
func (s *Service) ClaimableAmount(ctx context.Context, id ledger.StakeID) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.ClaimableAmount(id)
}

// ClaimHistory returns the per-epoch payout records of one stake.
func (s *Service) ClaimHistory(ctx context.Context, id ledger.StakeID) map[ledger.EpochID]ledger.StakeEpochClaim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.ClaimHistory(id)
}

// AdvanceClock moves the logical clock forward, materializing epochs.
func (s *Service) AdvanceClock(ctx context.Context, to uint64) error {
	defer track("advance_clock")()
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.ledger.LastEpochID()
	if err := s.ledger.AdvanceClock(to); err != nil {
		return err
	}
	for id := before; id < s.ledger.LastEpochID(); id++ {
		metrics.RecordEpochCreated()
	}
	return nil
}

// CreateEpochs materializes every epoch the current clock has already
// crossed, without moving the clock. Idempotent.
func (s *Service) CreateEpochs(ctx context.Context) {
	defer track("create_epochs")()
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.ledger.LastEpochID()
	s.ledger.CreateEpochs()
	for id := before; id < s.ledger.LastEpochID(); id++ {
		metrics.RecordEpochCreated()
	}
}

// Clock returns the current logical clock value.
func (s *Service) Clock(ctx context.Context) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Clock()
}

// SubmitPerformance scores a closed epoch with the maintainer's ratings.
func (s *Service) SubmitPerformance(ctx context.Context, caller string, id ledger.EpochID, ratings []ledger.PerformanceRating) error {
	defer track("submit_performance")()
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.SubmitPerformance(caller, id, ratings); err != nil {
		return err
	}
	metrics.RecordEpochFinalized()
	return nil
}

// Epoch returns a deep copy of one epoch.
func (s *Service) Epoch(ctx context.Context, id ledger.EpochID) (ledger.Epoch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Epoch(id)
}

// CurrentEpoch returns the epoch covering the current clock value.
func (s *Service) CurrentEpoch(ctx context.Context) ledger.Epoch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.CurrentEpoch()
}

// LastEpochID returns the id of the most recently created epoch.
func (s *Service) LastEpochID(ctx context.Context) ledger.EpochID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.LastEpochID()
}

// Params returns a copy of the current ledger parameters.
func (s *Service) Params(ctx context.Context) ledger.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Params()
}

// SetParams replaces the tunable ledger parameters. Owner- or
// maintainer-gated.
func (s *Service) SetParams(ctx context.Context, caller string, p ledger.Params) error {
	defer track("set_params")()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.SetParams(caller, p)
}

// TopN returns the top N rank index entries by aggregate stake.
func (s *Service) TopN(ctx context.Context, n int) ([]repository.Entry, error) {
	return s.rank.TopN(ctx, n)
}

// Rank returns the rank index entry for one entity.
func (s *Service) Rank(ctx context.Context, entity ledger.EntityID) (repository.Entry, error) {
	return s.rank.Rank(ctx, uint64(entity))
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if s.started {
		stats["clock"] = s.ledger.Clock()
		stats["lastEpoch"] = uint64(s.ledger.LastEpochID())
		stats["entityCount"] = s.ledger.EntityCount()
		stats["stakeCount"] = s.ledger.StakeCount()
		stats["rankedEntities"] = s.rank.Count(ctx)
		stats["busLength"] = s.bus.Len(ctx)
		stats["totalPaidOut"] = s.ledger.TotalPaidOut().Dec()

		metrics.UpdateEntityCount(s.ledger.EntityCount())
		metrics.UpdateStakeCount(s.ledger.StakeCount())
		metrics.UpdateBusSize(s.bus.Len(ctx))
	}
	return stats
}
