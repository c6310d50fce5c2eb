package behaviour

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"

	"roundabci/types"
)

// timeoutInfo is emitted when a timed event of a round elapsed.
type timeoutInfo struct {
	RoundID  types.RoundID
	Event    types.Event
	Duration time.Duration
}

func (ti timeoutInfo) String() string {
	return fmt.Sprintf("%v ; %d/%v", ti.Duration, ti.RoundID, ti.Event)
}

// RoundClock runs the timers of the round an agent is in. Scheduling a new
// round stops the timers of the previous one; timers never fire for a round
// that is no longer scheduled.
type RoundClock struct {
	service.BaseService

	mtx     sync.Mutex
	roundID types.RoundID
	timers  []*time.Timer

	tockChan chan timeoutInfo
}

func NewRoundClock() *RoundClock {
	rc := &RoundClock{
		tockChan: make(chan timeoutInfo, 16),
	}
	rc.BaseService = *service.NewBaseService(nil, "ROUND_CLOCK", rc)
	return rc
}

func (rc *RoundClock) SetLogger(logger log.Logger) {
	rc.Logger = logger
}

func (rc *RoundClock) OnStop() {
	rc.mtx.Lock()
	rc.stopTimers()
	rc.mtx.Unlock()
}

// Chan returns the channel timeouts are delivered on.
func (rc *RoundClock) Chan() <-chan timeoutInfo {
	return rc.tockChan
}

// Schedule arms one timer per timed event of round id.
func (rc *RoundClock) Schedule(id types.RoundID, timeouts map[types.Event]time.Duration) {
	rc.mtx.Lock()
	defer rc.mtx.Unlock()

	rc.stopTimers()
	rc.roundID = id

	events := make([]types.Event, 0, len(timeouts))
	for ev := range timeouts {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })

	for _, ev := range events {
		ti := timeoutInfo{RoundID: id, Event: ev, Duration: timeouts[ev]}
		rc.timers = append(rc.timers, time.AfterFunc(ti.Duration, func() { rc.fire(ti) }))
	}
	rc.Logger.Debug("scheduled round timeouts", "round", id, "events", len(events))
}

func (rc *RoundClock) fire(ti timeoutInfo) {
	rc.mtx.Lock()
	current := rc.roundID
	rc.mtx.Unlock()
	if current != ti.RoundID || !rc.IsRunning() {
		return
	}

	rc.Logger.Debug("timed out", "timeout", ti)
	select {
	case rc.tockChan <- ti:
	case <-rc.Quit():
	}
}

// stopTimers must be called with the lock held.
func (rc *RoundClock) stopTimers() {
	for _, t := range rc.timers {
		t.Stop()
	}
	rc.timers = nil
}
