package services

import (
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AnshRaj112/bugtracker-backend/internal/models"
)

const (
	DefaultMaxLoginAttempts = 5
	DefaultLockDuration     = 2 * time.Hour
)

// LockoutPolicy locks an account for LockDuration once MaxAttempts consecutive
// failures accumulate.
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: DefaultMaxLoginAttempts, LockDuration: DefaultLockDuration}
}

func (p LockoutPolicy) withDefaults() LockoutPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxLoginAttempts
	}
	if p.LockDuration <= 0 {
		p.LockDuration = DefaultLockDuration
	}
	return p
}

// applyLoginFailure is the in-process form of loginFailurePipeline.
// An expired lock restarts the count at 1 instead of continuing it.
func applyLoginFailure(u *models.User, now time.Time, p LockoutPolicy) {
	p = p.withDefaults()
	if u.LockUntil != nil && !u.LockUntil.After(now) {
		u.LoginAttempts = 1
		u.LockUntil = nil
	} else {
		u.LoginAttempts++
	}
	if u.LoginAttempts >= p.MaxAttempts && !u.IsLocked(now) {
		until := storeTime(now.Add(p.LockDuration))
		u.LockUntil = &until
	}
	u.UpdatedAt = storeTime(now)
}

// loginFailurePipeline applies a failed login as one server-side update so
// concurrent failures cannot lose increments.
func loginFailurePipeline(now time.Time, p LockoutPolicy) mongo.Pipeline {
	p = p.withDefaults()
	lockIsDate := bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: "$lock_until"}}, "date"}}}
	lockExpired := bson.D{{Key: "$and", Value: bson.A{
		lockIsDate,
		bson.D{{Key: "$lte", Value: bson.A{"$lock_until", now}}},
	}}}
	lockActive := bson.D{{Key: "$and", Value: bson.A{
		lockIsDate,
		bson.D{{Key: "$gt", Value: bson.A{"$lock_until", now}}},
	}}}

	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "login_attempts", Value: bson.D{{Key: "$cond", Value: bson.A{
				lockExpired,
				1,
				bson.D{{Key: "$add", Value: bson.A{bson.D{{Key: "$ifNull", Value: bson.A{"$login_attempts", 0}}}, 1}}},
			}}}},
			{Key: "lock_until", Value: bson.D{{Key: "$cond", Value: bson.A{lockExpired, nil, "$lock_until"}}}},
			{Key: "updated_at", Value: now},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "lock_until", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$gte", Value: bson.A{"$login_attempts", p.MaxAttempts}}},
					bson.D{{Key: "$not", Value: bson.A{lockActive}}},
				}}},
				now.Add(p.LockDuration),
				"$lock_until",
			}}}},
		}}},
	}
}

// RetryWindow renders the time left on a lock the way users read it:
// "2 hours", "1 hour", "45 minutes", "1 minute".
func RetryWindow(lockUntil, now time.Time) string {
	remaining := lockUntil.Sub(now)
	if remaining <= 0 {
		return "1 minute"
	}
	if remaining >= time.Hour {
		hours := int(math.Ceil(remaining.Hours()))
		return plural(hours, "hour")
	}
	minutes := int(math.Ceil(remaining.Minutes()))
	return plural(minutes, "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// storeTime matches the millisecond UTC precision of BSON dates.
func storeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
