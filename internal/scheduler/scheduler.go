// Package scheduler arms and claims job wake-ups: the primitive the
// Orchestrator uses to defer a poll tick (video/compile phases) instead of
// blocking a worker on time.Sleep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const armedKey = "scheduler:armed"

// Scheduler arms jobs for a future wake-up and lets workers atomically
// claim whichever armed jobs are due, via a Redis sorted set keyed by wake
// time and a Lua script that pops-and-removes in one round trip so two
// workers polling concurrently never claim the same job twice.
type Scheduler struct {
	client *redis.Client
}

func New(client *redis.Client) *Scheduler {
	return &Scheduler{client: client}
}

// ArmAt schedules jobID to become claimable at absoluteTime. Arming a job
// that is already armed moves its wake time forward or back; there is only
// ever one pending wake-up per jobID.
func (s *Scheduler) ArmAt(ctx context.Context, jobID string, absoluteTime time.Time) error {
	return s.client.ZAdd(ctx, armedKey, redis.Z{
		Score:  float64(absoluteTime.UnixMilli()),
		Member: jobID,
	}).Err()
}

// Disarm removes a pending wake-up, used when a job reaches a terminal
// phase before its armed time arrives (e.g. cancelled while polling).
func (s *Scheduler) Disarm(ctx context.Context, jobID string) error {
	return s.client.ZRem(ctx, armedKey, jobID).Err()
}

// ClaimDue atomically pops up to limit job ids whose armed time has
// already passed, removing them from the armed set so no other worker can
// claim the same wake-up.
func (s *Scheduler) ClaimDue(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	res, err := claimDueScript.Run(ctx, s.client, []string{armedKey}, now.UnixMilli(), limit).Result()
	if err != nil {
		return nil, err
	}
	raw, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected type from claim script: %T", res)
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

var claimDueScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local due = redis.call('ZRANGEBYSCORE', key, '-inf', now, 'LIMIT', 0, limit)
if #due > 0 then
  redis.call('ZREM', key, unpack(due))
end
return due
`)
