// Package scheduler owns the one-shot timers that move auctions through their
// lifecycle: the start timer of every Scheduled auction and the end timer of every
// Live auction that has a duration.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"live-auction/internal/lifecycle"
	model "live-auction/internal/models"
	"live-auction/utils"

	"github.com/benbjohnson/clock"
)

// Lifecycle is the part of the lifecycle manager the timers drive.
type Lifecycle interface {
	Start(ctx context.Context, auctionID string) (lifecycle.Transition, error)
	Close(ctx context.Context, auctionID string) (lifecycle.Transition, error)
}

// Announcer delivers an event to every connected client.
type Announcer interface {
	Announce(ev model.Event)
}

const (
	armed int32 = iota
	fired
	disarmed
)

type kind string

const (
	startJob kind = "start"
	endJob   kind = "end"
)

type job struct {
	auctionID string
	kind      kind
	state     atomic.Int32
	timer     *clock.Timer
}

// Scheduler arms, fires and disarms lifecycle timers. A timer fires at most once, and
// firing and disarming race through a compare-and-swap: whichever acts first wins and
// the other becomes a no-op.
type Scheduler struct {
	clock     clock.Clock
	lifecycle Lifecycle
	announcer Announcer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]map[kind]*job
	stopped bool
}

// New creates a scheduler. A nil clock uses the wall clock.
func New(clk clock.Clock, lc Lifecycle, announcer Announcer) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:     clk,
		lifecycle: lc,
		announcer: announcer,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]map[kind]*job),
	}
}

// ScheduleStartNotification arms the start timer for auctionID. When the timer fires the
// auction is started and, if that changed its state, auction-starting is announced to
// every client. A start already in the past fires immediately on its own goroutine.
func (s *Scheduler) ScheduleStartNotification(auctionID string, scheduledStart time.Time) {
	s.arm(auctionID, startJob, scheduledStart)
}

// ScheduleEnd arms the end-condition timer that closes a Live auction.
func (s *Scheduler) ScheduleEnd(auctionID string, endsAt time.Time) {
	s.arm(auctionID, endJob, endsAt)
}

// Disarm cancels every armed timer of auctionID. It reports whether a timer was
// disarmed before it could fire.
func (s *Scheduler) Disarm(auctionID string) bool {
	s.mu.Lock()
	jobs := s.jobs[auctionID]
	delete(s.jobs, auctionID)
	s.mu.Unlock()

	won := false
	for _, j := range jobs {
		if s.disarm(j) {
			won = true
		}
	}
	if won {
		utils.Info("auction timers disarmed", map[string]any{"auction_id": auctionID})
	}
	return won
}

// Armed reports whether a timer of auctionID is waiting to fire.
func (s *Scheduler) Armed(auctionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs[auctionID] {
		if j.state.Load() == armed {
			return true
		}
	}
	return false
}

// Stop disarms every timer and waits for in-flight firings to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	all := s.jobs
	s.jobs = make(map[string]map[kind]*job)
	s.mu.Unlock()

	for _, jobs := range all {
		for _, j := range jobs {
			s.disarm(j)
		}
	}
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) arm(auctionID string, k kind, at time.Time) {
	j := &job{auctionID: auctionID, kind: k}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		utils.Warn("scheduler stopped, timer not armed", map[string]any{"auction_id": auctionID, "kind": k})
		return
	}
	byKind, ok := s.jobs[auctionID]
	if !ok {
		byKind = make(map[kind]*job)
		s.jobs[auctionID] = byKind
	}
	previous := byKind[k]
	byKind[k] = j
	s.wg.Add(1)

	delay := at.Sub(s.clock.Now())
	if delay > 0 {
		j.timer = s.clock.AfterFunc(delay, func() { s.fire(j) })
	}
	s.mu.Unlock()

	if previous != nil {
		s.disarm(previous)
	}
	if delay <= 0 {
		go s.fire(j)
	}

	utils.Debug("auction timer armed", map[string]any{"auction_id": auctionID, "kind": k, "at": at})
}

// disarm wins the job away from its timer. The winner of the compare-and-swap owns the
// job's wait-group slot.
func (s *Scheduler) disarm(j *job) bool {
	if !j.state.CompareAndSwap(armed, disarmed) {
		return false
	}
	if j.timer != nil {
		j.timer.Stop()
	}
	s.wg.Done()
	return true
}

func (s *Scheduler) fire(j *job) {
	if !j.state.CompareAndSwap(armed, fired) {
		return
	}
	defer s.wg.Done()

	s.mu.Lock()
	if byKind := s.jobs[j.auctionID]; byKind[j.kind] == j {
		delete(byKind, j.kind)
		if len(byKind) == 0 {
			delete(s.jobs, j.auctionID)
		}
	}
	s.mu.Unlock()

	switch j.kind {
	case startJob:
		s.start(j.auctionID)
	case endJob:
		s.end(j.auctionID)
	}
}

func (s *Scheduler) start(auctionID string) {
	tr, err := s.lifecycle.Start(s.ctx, auctionID)
	if err != nil {
		utils.Error("scheduled start failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return
	}
	if !tr.Changed {
		return
	}

	s.announcer.Announce(model.NewAuctionStartingEvent(tr.Auction))

	if endsAt, ok := tr.Auction.EndsAt(); ok {
		s.ScheduleEnd(auctionID, endsAt)
	}
}

func (s *Scheduler) end(auctionID string) {
	if _, err := s.lifecycle.Close(s.ctx, auctionID); err != nil {
		utils.Error("scheduled close failed", map[string]any{"auction_id": auctionID, "error": err.Error()})
	}
}
