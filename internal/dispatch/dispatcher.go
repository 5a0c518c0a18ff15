package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"fleetvoice-platform/internal/audit"
	"fleetvoice-platform/internal/calls"
	"fleetvoice-platform/internal/schedule"
	"fleetvoice-platform/internal/telephony"
	"fleetvoice-platform/pkg/utils"
)

// inFlightCapKey is the fleet-wide counter of dispatches currently being
// placed with the provider. Shared by all instances.
const inFlightCapKey = "fleetvoice:dispatch:inflight"

// capTTL bounds how long a crashed instance can hold cap slots.
const capTTL = 5 * time.Minute

// batchLimit bounds how many due entries one tick pulls. Leftover entries
// are picked up by the next tick.
const batchLimit = 200

// CallStore is the slice of the calls store the dispatcher needs.
type CallStore interface {
	Create(ctx context.Context, c calls.Call) (calls.Call, error)
	MarkInProgress(ctx context.Context, callSID, conversationID string, startedAt time.Time) error
	MarkFailed(ctx context.Context, callSID, reason string) error
}

// ScheduleStore is the slice of the schedule store the dispatcher needs.
type ScheduleStore interface {
	Due(ctx context.Context, now time.Time, limit int) ([]schedule.Entry, error)
	Deactivate(ctx context.Context, id string) (bool, error)
}

// Dispatcher turns due schedule entries into outbound provider calls.
//
// Rules:
//   - The call row is created (status dispatching) BEFORE the provider is
//     contacted, so every provider attempt has a durable record.
//   - The call sid is derived from the schedule entry id, so two instances
//     racing on the same entry collide on the unique constraint and only
//     one proceeds.
//   - The entry is deactivated exactly once per attempt, success or
//     failure. A failed provider call is recorded as failed and is NOT
//     rescheduled automatically.
type Dispatcher struct {
	calls     CallStore
	schedules ScheduleStore
	provider  telephony.Provider
	audit     *audit.Service

	// rdb enables the fleet-wide in-flight cap; nil disables it.
	rdb         *redis.Client
	maxInFlight int

	callbackURL string
	workers     int
	retry       utils.RetryPolicy
	log         *slog.Logger
	clock       func() time.Time
}

type Options struct {
	CallbackURL string
	Workers     int

	// MaxInFlight caps concurrent provider calls across instances.
	// Zero disables the cap. Requires Redis.
	MaxInFlight int
	Redis       *redis.Client

	Retry utils.RetryPolicy
	Clock func() time.Time
}

func New(cs CallStore, ss ScheduleStore, provider telephony.Provider, auditor *audit.Service, log *slog.Logger, opts Options) *Dispatcher {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{
		calls:       cs,
		schedules:   ss,
		provider:    provider,
		audit:       auditor,
		rdb:         opts.Redis,
		maxInFlight: opts.MaxInFlight,
		callbackURL: opts.CallbackURL,
		workers:     workers,
		retry:       opts.Retry,
		log:         log.With("component", "dispatcher"),
		clock:       clock,
	}
}

// RunTick processes every entry due at the current time. Entries are
// dispatched by a bounded worker pool; the tick returns once all workers
// drain. Individual entry failures are logged and do not abort the tick.
func (d *Dispatcher) RunTick(ctx context.Context) error {
	now := d.clock()

	var due []schedule.Entry
	err := utils.RetryTransient(ctx, d.retry, func(ctx context.Context) error {
		var err error
		due, err = d.schedules.Due(ctx, now, batchLimit)
		return err
	})
	if err != nil {
		return fmt.Errorf("load due entries: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	d.log.Info("dispatch tick", "due", len(due), "workers", d.workers)

	work := make(chan schedule.Entry)
	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range work {
				d.dispatchOne(ctx, entry)
			}
		}()
	}
	for _, entry := range due {
		if ctx.Err() != nil {
			break
		}
		work <- entry
	}
	close(work)
	wg.Wait()
	return ctx.Err()
}

func (d *Dispatcher) dispatchOne(ctx context.Context, entry schedule.Entry) {
	sid := calls.DispatchCallSID(entry.ID)
	log := d.log.With("call_sid", sid, "schedule_id", entry.ID, "driver_id", entry.DriverID)

	if d.maxInFlight > 0 && d.rdb != nil {
		acquired, err := utils.AcquireConcurrencyCap(ctx, d.rdb, inFlightCapKey, d.maxInFlight, capTTL)
		if err != nil {
			log.Warn("in-flight cap check failed, proceeding uncapped", "error", err)
		} else if !acquired {
			// Entry stays active; the next tick retries it.
			log.Info("in-flight cap reached, deferring entry")
			return
		} else {
			defer func() {
				if err := utils.ReleaseConcurrencyCap(context.WithoutCancel(ctx), d.rdb, inFlightCapKey); err != nil {
					log.Warn("release in-flight cap failed", "error", err)
				}
			}()
		}
	}

	// Durable dispatching record before any provider traffic.
	created := calls.Call{
		CallSID:    sid,
		DriverID:   entry.DriverID,
		DriverName: entry.DriverName,
		Phone:      entry.Phone,
		Status:     calls.CallStatusDispatching,
	}
	err := utils.RetryTransient(ctx, d.retry, func(ctx context.Context) error {
		_, err := d.calls.Create(ctx, created)
		return err
	})
	if errors.Is(err, calls.ErrDuplicateCallSID) {
		// Another instance (or a crashed previous tick) already created
		// the call row. The row proves the attempt happened, so the
		// entry is still consumed; otherwise it stays due forever.
		log.Info("entry already claimed, skipping provider call")
		d.auditLog(ctx, audit.EventTypeDispatchSkipped, sid, entry, "duplicate call_sid")
		d.deactivate(ctx, entry, log)
		return
	}
	if err != nil {
		log.Error("create dispatch record failed", "error", err)
		return
	}

	result, callErr := d.provider.DispatchCall(ctx, telephony.DispatchRequest{
		CallSID:     sid,
		DriverID:    entry.DriverID,
		DriverName:  entry.DriverName,
		Phone:       entry.Phone,
		Details:     entry.Details,
		CallbackURL: d.callbackURL,
	})

	if callErr != nil {
		log.Error("provider dispatch failed", "provider", d.provider.Name(), "error", callErr)
		err = utils.RetryTransient(ctx, d.retry, func(ctx context.Context) error {
			return d.calls.MarkFailed(ctx, sid, callErr.Error())
		})
		if err != nil {
			log.Error("mark failed did not persist", "error", err)
		}
		d.auditLog(ctx, audit.EventTypeDispatchFailed, sid, entry, callErr.Error())
	} else {
		startedAt := d.clock()
		err = utils.RetryTransient(ctx, d.retry, func(ctx context.Context) error {
			return d.calls.MarkInProgress(ctx, sid, result.ConversationID, startedAt)
		})
		if err != nil {
			// The provider accepted the call; the completion webhook will
			// still land by call_sid even if this update was lost.
			log.Error("mark in_progress did not persist", "error", err)
		}
		log.Info("call dispatched", "conversation_id", result.ConversationID)
		d.auditLog(ctx, audit.EventTypeDispatchSucceeded, sid, entry, "")
	}

	// Exactly-once deactivation, independent of the provider outcome.
	d.deactivate(ctx, entry, log)
}

func (d *Dispatcher) deactivate(ctx context.Context, entry schedule.Entry, log *slog.Logger) {
	var won bool
	err := utils.RetryTransient(ctx, d.retry, func(ctx context.Context) error {
		var err error
		won, err = d.schedules.Deactivate(ctx, entry.ID)
		return err
	})
	if err != nil {
		log.Error("deactivate entry failed", "error", err)
		return
	}
	if !won {
		log.Warn("entry was already deactivated")
	}
}

func (d *Dispatcher) auditLog(ctx context.Context, t audit.EventType, sid string, entry schedule.Entry, msg string) {
	if d.audit == nil {
		return
	}
	if err := d.audit.LogDispatch(ctx, t, sid, entry.ID, entry.DriverID, msg); err != nil {
		d.log.Warn("audit append failed", "error", err, "type", t)
	}
}
