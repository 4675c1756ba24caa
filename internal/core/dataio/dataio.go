// Package dataio implements the resilient, intent-aware read/write/delete
// policy engine that sits in front of a primary provider, a fallback
// provider, and a durable emergency buffer. Callers never see a raw
// provider error: every policy-driven skip or exhausted fallback chain
// collapses to a plain boolean (write/delete) or a missing value (read).
package dataio

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iruldev/concurrency-core/internal/core/breaker"
	"github.com/iruldev/concurrency-core/internal/core/provider"
	"github.com/iruldev/concurrency-core/internal/hooks"
	"github.com/iruldev/concurrency-core/internal/infra/emergencybuffer"
	"github.com/iruldev/concurrency-core/internal/infra/resilience"
	"github.com/iruldev/concurrency-core/internal/intent"
	"github.com/iruldev/concurrency-core/internal/mask"
	"github.com/iruldev/concurrency-core/internal/sysstatus"
)

// Record is the shape DataIO persists: a flat field map, which lets the
// masker inspect individual field names before serialization.
type Record map[string]any

// DataIO is the intent-aware policy engine for storage: it never throws, and
// it owns the decision of which backend a given write/read/delete actually
// reaches.
type DataIO struct {
	primary  provider.Provider
	fallback provider.Provider
	buffer   *emergencybuffer.Buffer

	breakers *breaker.Table
	sys      *sysstatus.Sampler
	masker   *mask.Masker
	intents  *intent.Registry
	hooks    *hooks.Registry

	primaryTimeout resilience.Timeout
	retrier        resilience.Retrier
	bulkhead       resilience.Bulkhead

	logger *zap.Logger
}

// New wires a DataIO instance. primary and fallback may be nil, in which
// case that leg of the fallback chain is simply skipped. buffer is required
// whenever CRITICAL writes are expected to survive a primary outage. bulkhead may be nil, in which case provider calls are not
// concurrency-bounded beyond whatever the provider itself enforces.
func New(
	primary, fallback provider.Provider,
	buf *emergencybuffer.Buffer,
	breakers *breaker.Table,
	sys *sysstatus.Sampler,
	masker *mask.Masker,
	intents *intent.Registry,
	hookRegistry *hooks.Registry,
	primaryTimeout resilience.Timeout,
	retrier resilience.Retrier,
	bulkhead resilience.Bulkhead,
	logger *zap.Logger,
) *DataIO {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataIO{
		primary:        primary,
		fallback:       fallback,
		buffer:         buf,
		breakers:       breakers,
		sys:            sys,
		masker:         masker,
		intents:        intents,
		hooks:          hookRegistry,
		primaryTimeout: primaryTimeout,
		retrier:        retrier,
		bulkhead:       bulkhead,
		logger:         logger,
	}
}

// Write persists value under key according to the intent-driven decision
// table. It returns true iff some backend durably accepted the write (or
// the write was correctly skipped, e.g. an EPHEMERAL write under stress).
func (d *DataIO) Write(ctx context.Context, key string, value Record, tag intent.Tag) bool {
	rec := d.intents.MustResolve(tag)
	masked := d.maskRecord(value, tag)

	data, err := json.Marshal(masked)
	if err != nil {
		d.emitDataIOError(ctx, "serialize", key, err)
		return false
	}

	healthyP := d.isHealthy(ctx, d.primary)

	if healthyP {
		if tag == intent.Ephemeral && d.sys.Status(ctx) != sysstatus.Green {
			return true
		}
		if err := d.writeThrough(ctx, d.primary, key, data); err != nil {
			d.logger.Warn("primary write failed",
				zap.String("key", key), zap.String("intent", string(tag)), zap.Error(err))
			if tag == intent.Critical && rec.EmergencyBufferable {
				return d.writeEmergency(ctx, key, data, tag)
			}
			d.emitDataIOError(ctx, "write", key, err)
			return false
		}
		return true
	}

	if tag == intent.Critical && rec.EmergencyBufferable {
		return d.writeEmergency(ctx, key, data, tag)
	}

	if d.fallback == nil {
		d.emitDataIOError(ctx, "write", key, errors.New("no fallback provider configured"))
		return false
	}
	if err := d.writeThrough(ctx, d.fallback, key, data); err != nil {
		d.logger.Warn("fallback write failed", zap.String("key", key), zap.Error(err))
		d.emitDataIOError(ctx, "write", key, err)
		return false
	}
	return true
}

// Read tries the primary, then the fallback, then the emergency buffer, and
// returns the first value found. Reads never trip a breaker.
func (d *DataIO) Read(ctx context.Context, key string, _ intent.Tag) (Record, bool) {
	if d.primary != nil {
		if v, ok := d.readFrom(ctx, d.primary, key); ok {
			return v, true
		}
	}
	if d.fallback != nil {
		if v, ok := d.readFrom(ctx, d.fallback, key); ok {
			return v, true
		}
	}
	if d.buffer != nil {
		if entry, err := d.buffer.Read(ctx, key); err == nil {
			var v Record
			if json.Unmarshal(entry.Data, &v) == nil {
				return v, true
			}
		}
	}
	return nil, false
}

// Delete removes key from every configured backend independently and
// succeeds if any backend reported success.
func (d *DataIO) Delete(ctx context.Context, key string, _ intent.Tag) bool {
	ok := false
	if d.primary != nil && d.primary.Delete(ctx, key) == nil {
		ok = true
	}
	if d.fallback != nil && d.fallback.Delete(ctx, key) == nil {
		ok = true
	}
	if d.buffer != nil && d.buffer.Delete(ctx, key) == nil {
		ok = true
	}
	return ok
}

func (d *DataIO) maskRecord(value Record, tag intent.Tag) Record {
	if tag == intent.Sensitive {
		out := make(Record, len(value))
		for k, v := range value {
			out[k] = mask.MaskValue(v)
		}
		return out
	}
	return Record(d.masker.MaskRecord(value))
}

// WriteThroughPrimary writes pre-serialized data directly to the primary
// provider through the same breaker/retry/timeout chain Write uses,
// bypassing the intent-driven fallback and emergency-buffer policy. The
// background sync loop uses this to replay buffered entries without a
// primary-write failure silently re-queuing into the very buffer being
// drained.
func (d *DataIO) WriteThroughPrimary(ctx context.Context, key string, data []byte) error {
	if d.primary == nil {
		return errors.New("no primary provider configured")
	}
	return d.writeThrough(ctx, d.primary, key, data)
}

func (d *DataIO) isHealthy(ctx context.Context, p provider.Provider) bool {
	if p == nil {
		return false
	}
	if !p.CheckHealth(ctx) {
		return false
	}
	if state, ok := d.breakers.State(p.ID()); ok && state == resilience.StateOpen {
		return false
	}
	return true
}

// writeThrough runs a provider write through the shared bulkhead, timeout,
// retry, and per-provider breaker so a slow or flaky primary can't stall the
// policy engine past its configured budget, and a burst of concurrent
// writes can't exhaust the provider's own connection pool.
func (d *DataIO) writeThrough(ctx context.Context, p provider.Provider, key string, data []byte) error {
	call := func(ctx context.Context) error {
		return d.retrier.Do(ctx, func(ctx context.Context) error {
			return d.primaryTimeout.Do(ctx, func(ctx context.Context) error {
				return p.Write(ctx, key, data)
			})
		})
	}
	if d.bulkhead != nil {
		bounded := call
		call = func(ctx context.Context) error {
			return d.bulkhead.Do(ctx, bounded)
		}
	}

	_, err := d.breakers.Execute(ctx, p.ID(), func() (any, error) {
		return nil, call(ctx)
	})
	return err
}

func (d *DataIO) readFrom(ctx context.Context, p provider.Provider, key string) (Record, bool) {
	data, err := p.Read(ctx, key)
	if err != nil {
		return nil, false
	}
	var v Record
	if json.Unmarshal(data, &v) != nil {
		return nil, false
	}
	return v, true
}

func (d *DataIO) writeEmergency(ctx context.Context, key string, data []byte, tag intent.Tag) bool {
	if d.buffer == nil {
		d.emitDataIOError(ctx, "write", key, errors.New("no emergency buffer configured"))
		return false
	}
	if err := d.buffer.Write(ctx, key, data, string(tag)); err != nil {
		d.emitDataIOError(ctx, "write", key, err)
		return false
	}
	return true
}

func (d *DataIO) emitDataIOError(ctx context.Context, op, key string, err error) {
	if d.hooks == nil {
		return
	}
	d.hooks.TriggerEvent(ctx, hooks.EventContext{
		Type:      hooks.OnDataIOError,
		Timestamp: time.Now().UTC(),
		Payload:   map[string]string{"op": op, "key": key},
		Err:       err,
	})
}
