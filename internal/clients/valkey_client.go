package clients

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

const (
	VALKEY_COOLDOWN_PREFIX = "leadscout:cooldown:"
	VALKEY_SEEN_PREFIX     = "leadscout:seen:"
	VALKEY_SEEN_TTL        = 48 * time.Hour
	VALKEY_RETRIES         = 3
	VALKEY_RETRY_DELAY     = 250 * time.Millisecond
)

type ValkeyClient struct {
	Client valkey.Client
	opts   valkey.ClientOption
	mu     sync.RWMutex
}

func NewValkeyOptions(address, password string, useTLS bool) valkey.ClientOption {
	opts := valkey.ClientOption{
		InitAddress:      []string{address},
		Password:         password,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	}
	if useTLS {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: false}
	}
	return opts
}

func NewValkeyClient(opts valkey.ClientOption) (*ValkeyClient, error) {
	client, err := connectValkey(opts)
	if err != nil {
		return nil, err
	}
	slog.Info("[ValkeyClient] Successfully connected to valkey")
	return &ValkeyClient{Client: client, opts: opts}, nil
}

func connectValkey(opts valkey.ClientOption) (valkey.Client, error) {
	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("[ValkeyClient] failed to create Valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("[ValkeyClient] failed to ping Valkey: %w", err)
	}
	return client, nil
}

func (vc *ValkeyClient) client() valkey.Client {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.Client
}

func (vc *ValkeyClient) recreateClient() {
	vc.mu.Lock()
	defer vc.mu.Unlock()
	slog.Warn("[ValkeyClient] Attempting to recreate Valkey client...")

	client, err := connectValkey(vc.opts)
	if err != nil {
		slog.Error("[ValkeyClient] Recreate failed", slog.String("error", err.Error()))
		return
	}
	vc.Client.Close()
	vc.Client = client
	slog.Info("[ValkeyClient] Successfully reconnected to valkey")
}

func (vc *ValkeyClient) Close() {
	vc.client().Close()
}

func (vc *ValkeyClient) Ping(ctx context.Context) error {
	c := vc.client()
	return c.Do(ctx, c.B().Ping().Build()).Error()
}

// CooldownUntil returns when the account's cooldown ends, or the zero time when
// it is not cooling down.
func (vc *ValkeyClient) CooldownUntil(ctx context.Context, account string) (time.Time, error) {
	res := vc.doWithRetry(ctx, VALKEY_RETRIES, func(c valkey.Client) valkey.ValkeyResult {
		return c.Do(ctx, c.B().Get().Key(VALKEY_COOLDOWN_PREFIX+account).Build())
	})
	if valkey.IsValkeyNil(res.Error()) {
		return time.Time{}, nil
	}
	raw, err := res.ToString()
	if err != nil {
		return time.Time{}, fmt.Errorf("[ValkeyClient] read cooldown for %s: %w", account, err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("[ValkeyClient] bad cooldown value %q: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// extendCooldown sets KEYS[1] to ARGV[1] (unix ms) with a PX of ARGV[2] unless
// the stored end is already later. Returns 1 when the key was written.
var extendCooldown = valkey.NewLuaScript(`
local current = redis.call('GET', KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
return 1
`)

// StartCooldown stores the cooldown end and lets the key expire with it. An
// existing longer cooldown is kept.
func (vc *ValkeyClient) StartCooldown(ctx context.Context, account string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	keys := []string{VALKEY_COOLDOWN_PREFIX + account}
	args := []string{
		strconv.FormatInt(until.UnixMilli(), 10),
		strconv.FormatInt(max(ttl.Milliseconds(), 1), 10),
	}
	res := vc.doWithRetry(ctx, VALKEY_RETRIES, func(c valkey.Client) valkey.ValkeyResult {
		return extendCooldown.Exec(ctx, c, keys, args)
	})
	written, err := res.AsInt64()
	if err != nil {
		return fmt.Errorf("[ValkeyClient] set cooldown for %s: %w", account, err)
	}
	if written == 1 {
		slog.Info("[ValkeyClient] Cooldown stored",
			slog.String("account", account),
			slog.Time("until", until))
	}
	return nil
}

// MarkSeen records that (user, post) already reached the gate.
func (vc *ValkeyClient) MarkSeen(ctx context.Context, userID, postID string) error {
	res := vc.doWithRetry(ctx, VALKEY_RETRIES, func(c valkey.Client) valkey.ValkeyResult {
		return c.Do(ctx, c.B().Set().Key(seenKey(userID, postID)).Value("1").
			ExSeconds(int64(VALKEY_SEEN_TTL/time.Second)).Build())
	})
	return res.Error()
}

// IsSeen reports whether (user, post) is known. Errors read as "not seen" so the
// gate stays the authority.
func (vc *ValkeyClient) IsSeen(ctx context.Context, userID, postID string) bool {
	res := vc.doWithRetry(ctx, VALKEY_RETRIES, func(c valkey.Client) valkey.ValkeyResult {
		return c.Do(ctx, c.B().Exists().Key(seenKey(userID, postID)).Build())
	})
	n, err := res.AsInt64()
	if err != nil {
		return false
	}
	return n > 0
}

func seenKey(userID, postID string) string {
	return VALKEY_SEEN_PREFIX + userID + ":" + postID
}

// doWithRetry calls exec up to retries times. exec builds its command on each
// call because valkey-go recycles a command once it has been sent.
func (vc *ValkeyClient) doWithRetry(ctx context.Context, retries int, exec func(valkey.Client) valkey.ValkeyResult) valkey.ValkeyResult {
	var result valkey.ValkeyResult
	for i := 0; i < retries; i++ {
		result = exec(vc.client())
		err := result.Error()
		if err == nil || valkey.IsValkeyNil(err) {
			break
		}

		slog.Warn("[ValkeyClient] Do failed",
			slog.Int("attempt", i+1),
			slog.String("error", err.Error()))
		if isConnectionError(err) {
			vc.recreateClient()
		}
		if i == retries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return result
		case <-time.After(VALKEY_RETRY_DELAY):
		}
	}

	return result
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "i/o timeout")
}
