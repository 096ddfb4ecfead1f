// Package kvb wraps the Key-Value Bus: a process-external key/value + pub/sub
// store (Redis) holding transient scan state, the output ring, and the
// progress cache, and carrying the three pub/sub channels per scan (§6.3).
//
// The teacher has no equivalent — this client is sourced from the
// go-redis/v9 usage pattern in the kubernaut example repo and structured the
// way db.DatabaseConnection wraps *gorm.DB: a small struct holding a client,
// constructed once, passed by explicit injection (no package-level client).
package kvb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Bus is the constructor-injected handle every component takes instead of
// reaching for a global client.
type Bus struct {
	client      *redis.Client
	outputTTL   time.Duration
	progressTTL time.Duration
}

// Config configures a new Bus.
type Config struct {
	Addr        string
	Password    string
	DB          int
	OutputTTL   time.Duration
	ProgressTTL time.Duration
}

func New(cfg Config) *Bus {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Bus{client: client, outputTTL: cfg.OutputTTL, progressTTL: cfg.ProgressTTL}
}

// NewWithClient builds a Bus around an already-constructed client — used by
// tests to inject a miniredis-backed client.
func NewWithClient(client *redis.Client, outputTTL, progressTTL time.Duration) *Bus {
	return &Bus{client: client, outputTTL: outputTTL, progressTTL: progressTTL}
}

func (b *Bus) Close() error {
	return b.client.Close()
}

func scanKey(s string) string     { return "scan:" + s }
func outputKey(s string) string   { return "scan_output:" + s }
func resultsKey(s string) string  { return "scan_results:" + s }
func progressKey(s string) string { return "scan_progress:" + s }

func outputChannel(s string) string   { return s }
func progressChannel(s string) string { return s + ":progress" }
func statusChannel(s string) string   { return s + ":status" }

// ScanState is the JSON envelope stored at scan:{S}.
type ScanState struct {
	Status     string  `json:"status"`
	FinishedAt *string `json:"finished_at,omitempty"`
}

func (b *Bus) SetScanState(ctx context.Context, scanUUID string, state ScanState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, scanKey(scanUUID), payload, 0).Err()
}

func (b *Bus) GetScanState(ctx context.Context, scanUUID string) (*ScanState, error) {
	raw, err := b.client.Get(ctx, scanKey(scanUUID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state ScanState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// PushOutputLine appends a line to the output ring, (re)setting its TTL.
func (b *Bus) PushOutputLine(ctx context.Context, scanUUID, line string) error {
	key := outputKey(scanUUID)
	if err := b.client.RPush(ctx, key, line).Err(); err != nil {
		return err
	}
	return b.client.Expire(ctx, key, b.outputTTL).Err()
}

// ReadOutputLines returns every buffered output line, in publish order.
func (b *Bus) ReadOutputLines(ctx context.Context, scanUUID string) ([]string, error) {
	return b.client.LRange(ctx, outputKey(scanUUID), 0, -1).Result()
}

func (b *Bus) DeleteOutputLines(ctx context.Context, scanUUID string) error {
	return b.client.Del(ctx, outputKey(scanUUID)).Err()
}

func (b *Bus) SetResults(ctx context.Context, scanUUID string, resultsJSON []byte) error {
	return b.client.Set(ctx, resultsKey(scanUUID), resultsJSON, 0).Err()
}

// GetResults returns nil, nil if no results blob has been written yet.
func (b *Bus) GetResults(ctx context.Context, scanUUID string) ([]byte, error) {
	raw, err := b.client.Get(ctx, resultsKey(scanUUID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return raw, err
}

func (b *Bus) DeleteResults(ctx context.Context, scanUUID string) error {
	return b.client.Del(ctx, resultsKey(scanUUID)).Err()
}

func (b *Bus) SetProgress(ctx context.Context, scanUUID string, progress string) error {
	return b.client.Set(ctx, progressKey(scanUUID), progress, b.progressTTL).Err()
}

// GetProgress returns "", nil if no progress has been observed yet.
func (b *Bus) GetProgress(ctx context.Context, scanUUID string) (string, error) {
	val, err := b.client.Get(ctx, progressKey(scanUUID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// PublishOutput publishes a raw output line on {S}, the scanner-producer channel.
func (b *Bus) PublishOutput(ctx context.Context, scanUUID, line string) error {
	return b.client.Publish(ctx, outputChannel(scanUUID), line).Err()
}

// PublishProgress publishes a numeric progress hint on {S}:progress.
func (b *Bus) PublishProgress(ctx context.Context, scanUUID, value string) error {
	return b.client.Publish(ctx, progressChannel(scanUUID), value).Err()
}

// PublishStatus publishes a status transition envelope on {S}:status.
func (b *Bus) PublishStatus(ctx context.Context, scanUUID string, payload []byte) error {
	return b.client.Publish(ctx, statusChannel(scanUUID), payload).Err()
}

// Subscription wraps a redis.PubSub over one or more channels of one scan.
type Subscription struct {
	ps *redis.PubSub
}

// SubscribeAll subscribes to a scan's output, progress and status channels.
func (b *Bus) SubscribeAll(ctx context.Context, scanUUID string) *Subscription {
	ps := b.client.Subscribe(ctx, outputChannel(scanUUID), progressChannel(scanUUID), statusChannel(scanUUID))
	return &Subscription{ps: ps}
}

// SubscribeProgress subscribes only to a scan's progress channel — what the
// Watcher needs to reset its inactivity timer.
func (b *Bus) SubscribeProgress(ctx context.Context, scanUUID string) *Subscription {
	ps := b.client.Subscribe(ctx, progressChannel(scanUUID))
	return &Subscription{ps: ps}
}

func (s *Subscription) Close() error {
	return s.ps.Close()
}

// Receive blocks up to timeout for the next message. Any receive failure
// while ctx is still live — a plain timeout or a transport error alike — is
// reported as (nil, nil); an error is returned only once ctx itself is done.
func (s *Subscription) Receive(ctx context.Context, timeout time.Duration) (*redis.Message, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := s.ps.ReceiveMessage(cctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// context.DeadlineExceeded from cctx means "no message within timeout".
		return nil, nil
	}
	return msg, nil
}

// Channel identifies which of the three channels a received message is on,
// given the scan UUID it was subscribed under.
func Channel(scanUUID, channel string) string {
	switch channel {
	case progressChannel(scanUUID):
		return "progress"
	case statusChannel(scanUUID):
		return "status"
	case outputChannel(scanUUID):
		return "output"
	default:
		return "unknown"
	}
}
