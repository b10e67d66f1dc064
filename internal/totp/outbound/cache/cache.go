package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/otpguard/internal/pkg/instrument"
	"github.com/shandysiswandi/otpguard/internal/totp/entity"
)

const keyPrefix = "otpguard:totp:last_counter:"

// setIfGreater writes ARGV[1] only when the key is absent or holds a smaller
// value. Returns 1 when written and 0 when the stored counter is >= ARGV[1].
// ARGV[2] is a TTL in milliseconds, 0 for none.
var setIfGreater = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur and tonumber(cur) >= tonumber(ARGV[1]) then
  return 0
end
if tonumber(ARGV[2]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// Cache stores last accepted counters in Redis.
//
// A TTL bounds memory for inactive users. It must be longer than the widest
// verification window ((2*window+1)*period) or an expired key lets a code that
// is still inside its window be accepted again.
type Cache struct {
	client redis.UniversalClient
	ins    instrument.Instrumentation
	ttl    time.Duration
}

func NewCache(client redis.UniversalClient, ins instrument.Instrumentation, ttl time.Duration) *Cache {
	return &Cache{client: client, ins: ins, ttl: ttl}
}

func (c *Cache) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.ins.Tracer("totp.outbound.cache").Start(ctx, name)
}

func (c *Cache) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, entity.ErrStaleCounter) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (c *Cache) GetLastCounter(ctx context.Context, userID string) (_ int64, _ bool, err error) {
	ctx, span := c.startSpan(ctx, "GetLastCounter")
	defer func() { c.endSpan(span, err) }()

	counter, err := c.client.Get(ctx, keyPrefix+userID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	return counter, true, nil
}

func (c *Cache) SetLastCounter(ctx context.Context, userID string, counter int64) (err error) {
	ctx, span := c.startSpan(ctx, "SetLastCounter")
	defer func() { c.endSpan(span, err) }()

	written, err := setIfGreater.Run(ctx, c.client, []string{keyPrefix + userID}, counter, c.ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if written == 0 {
		return entity.ErrStaleCounter
	}

	return nil
}
