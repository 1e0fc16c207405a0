// Package redisfeed is a location Platform fed by a device through Redis.
//
// The device (or the ingest API acting for it) writes:
//
//	location:{device}:permission  string "granted" once the user allowed access
//	location:{device}:live        pub/sub channel, one JSON sample per message
//	location:{device}:batch       stream, entries with a "sample" JSON field
//
// Foreground watchers follow the pub/sub channel. The background task reads
// the stream in batches, so samples written while no one listens on the
// channel are still delivered.
package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"backend-runtracker/internal/location"

	"github.com/redis/go-redis/v9"
)

const (
	permissionGranted = "granted"
	sampleField       = "sample"
	defaultBlock      = 2 * time.Second
	retryDelay        = 500 * time.Millisecond
)

var errNoClient = errors.New("redis client not configured")

type Platform struct {
	rdb      *redis.Client
	deviceID string
	block    time.Duration
	logger   *slog.Logger
}

type Option func(*Platform)

// WithBlock sets how long one background XREAD waits for new entries.
func WithBlock(d time.Duration) Option {
	return func(p *Platform) { p.block = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Platform) { p.logger = logger }
}

func New(rdb *redis.Client, deviceID string, opts ...Option) *Platform {
	p := &Platform{
		rdb:      rdb,
		deviceID: deviceID,
		block:    defaultBlock,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func permissionKey(deviceID string) string { return "location:" + deviceID + ":permission" }
func liveChannel(deviceID string) string { return "location:" + deviceID + ":live" }
func batchStream(deviceID string) string { return "location:" + deviceID + ":batch" }

func (p *Platform) RequestPermission(ctx context.Context) (bool, error) {
	if p.rdb == nil {
		return false, errNoClient
	}
	val, err := p.rdb.Get(ctx, permissionKey(p.deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == permissionGranted, nil
}

func (p *Platform) WatchForeground(ctx context.Context, _ location.WatchOptions, emit func(location.Sample)) (func(), error) {
	if p.rdb == nil {
		return nil, errNoClient
	}
	pubsub := p.rdb.Subscribe(ctx, liveChannel(p.deviceID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe live channel: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range pubsub.Channel() {
			var sample location.Sample
			if err := json.Unmarshal([]byte(msg.Payload), &sample); err != nil {
				p.logger.Warn("discarding malformed live sample", "device", p.deviceID, "error", err)
				continue
			}
			emit(sample)
		}
	}()

	return func() {
		_ = pubsub.Close()
		<-done
	}, nil
}

func (p *Platform) StartBackground(ctx context.Context, opts location.WatchOptions, emitBatch func([]location.Sample)) (func(), error) {
	if p.rdb == nil {
		return nil, errNoClient
	}
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	count := int64(opts.BatchSize)
	if count <= 0 {
		count = 1
	}

	// Start after entries already in the stream so a fresh task does not
	// replay an earlier session.
	lastID := strconv.FormatInt(time.Now().UnixMilli()-1, 10) + "-" + strconv.FormatUint(math.MaxUint64, 10)

	readCtx, cancel := context.WithCancel(context.Background())
	gate := &emitGate{emit: emitBatch}
	go func() {
		for readCtx.Err() == nil {
			streams, err := p.rdb.XRead(readCtx, &redis.XReadArgs{
				Streams: []string{batchStream(p.deviceID), lastID},
				Count:   count,
				Block:   p.block,
			}).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if readCtx.Err() != nil {
					return
				}
				p.logger.Warn("background location read failed", "device", p.deviceID, "error", err)
				select {
				case <-readCtx.Done():
					return
				case <-time.After(retryDelay):
				}
				continue
			}

			for _, stream := range streams {
				batch := make([]location.Sample, 0, len(stream.Messages))
				for _, msg := range stream.Messages {
					lastID = msg.ID
					sample, err := decodeEntry(msg.Values)
					if err != nil {
						p.logger.Warn("discarding malformed batch sample", "device", p.deviceID, "id", msg.ID, "error", err)
						continue
					}
					batch = append(batch, sample)
				}
				if !gate.deliver(batch) {
					return
				}
			}
		}
	}()

	// go-redis does not interrupt a blocking XREAD on cancel, so stop closes
	// the gate instead of waiting for the reader; the reader exits once its
	// current read returns.
	return func() {
		cancel()
		gate.close()
	}, nil
}

// emitGate drops batches once closed. After close returns no emit is running
// and none will start.
type emitGate struct {
	mu     sync.Mutex
	closed bool
	emit   func([]location.Sample)
}

func (g *emitGate) deliver(batch []location.Sample) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.emit(batch)
	return true
}

func (g *emitGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

func decodeEntry(values map[string]interface{}) (location.Sample, error) {
	var sample location.Sample
	raw, ok := values[sampleField].(string)
	if !ok {
		return sample, errors.New("missing sample field")
	}
	err := json.Unmarshal([]byte(raw), &sample)
	return sample, err
}

// Grant records the device's permission answer.
func (p *Platform) Grant(ctx context.Context, granted bool) error {
	val := "denied"
	if granted {
		val = permissionGranted
	}
	return p.rdb.Set(ctx, permissionKey(p.deviceID), val, 0).Err()
}

// Publish sends a sample on the live channel.
func (p *Platform) Publish(ctx context.Context, sample location.Sample) error {
	payload, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, liveChannel(p.deviceID), payload).Err()
}

// Append writes a sample to the durable batch stream.
func (p *Platform) Append(ctx context.Context, sample location.Sample) error {
	payload, err := json.Marshal(sample)
	if err != nil {
		return err
	}
	return p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: batchStream(p.deviceID),
		Values: map[string]interface{}{sampleField: string(payload)},
	}).Err()
}
