package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AnshRaj112/bugtracker-backend/internal/models"
)

func TestApplyLoginFailure(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := LockoutPolicy{MaxAttempts: 3, LockDuration: time.Hour}
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name         string
		attempts     int
		lockUntil    *time.Time
		wantAttempts int
		wantLock     *time.Time
	}{
		{name: "first failure", attempts: 0, wantAttempts: 1},
		{name: "below threshold", attempts: 1, wantAttempts: 2},
		{name: "reaching threshold locks", attempts: 2, wantAttempts: 3, wantLock: ptrTime(now.Add(time.Hour))},
		{name: "expired lock restarts at one", attempts: 3, lockUntil: &past, wantAttempts: 1},
		{name: "lock ending now counts as expired", attempts: 3, lockUntil: &now, wantAttempts: 1},
		{name: "active lock is not extended", attempts: 3, lockUntil: &future, wantAttempts: 4, wantLock: &future},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &models.User{LoginAttempts: tt.attempts, LockUntil: tt.lockUntil}
			applyLoginFailure(u, now, policy)

			assert.Equal(t, tt.wantAttempts, u.LoginAttempts)
			if tt.wantLock == nil {
				assert.Nil(t, u.LockUntil)
				return
			}
			require.NotNil(t, u.LockUntil)
			assert.True(t, tt.wantLock.Equal(*u.LockUntil), "lock %v, want %v", *u.LockUntil, *tt.wantLock)
		})
	}
}

func TestLockoutPolicyDefaults(t *testing.T) {
	p := LockoutPolicy{}.withDefaults()
	assert.Equal(t, DefaultMaxLoginAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultLockDuration, p.LockDuration)
}

func TestLoginFailurePipeline(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	policy := LockoutPolicy{MaxAttempts: 3, LockDuration: time.Hour}
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name         string
		doc          map[string]any
		wantAttempts int
		wantLock     any
	}{
		{name: "fresh document", doc: map[string]any{}, wantAttempts: 1, wantLock: missingField{}},
		{name: "below threshold", doc: map[string]any{"login_attempts": 1}, wantAttempts: 2, wantLock: missingField{}},
		{name: "cleared lock below threshold", doc: map[string]any{"login_attempts": 1, "lock_until": nil}, wantAttempts: 2, wantLock: nil},
		{name: "reaching threshold locks", doc: map[string]any{"login_attempts": 2}, wantAttempts: 3, wantLock: now.Add(time.Hour)},
		{name: "expired lock restarts at one", doc: map[string]any{"login_attempts": 3, "lock_until": past}, wantAttempts: 1, wantLock: nil},
		{name: "lock ending now counts as expired", doc: map[string]any{"login_attempts": 3, "lock_until": now}, wantAttempts: 1, wantLock: nil},
		{name: "active lock is kept", doc: map[string]any{"login_attempts": 3, "lock_until": future}, wantAttempts: 4, wantLock: future},
		{name: "expired lock above threshold restarts at one", doc: map[string]any{"login_attempts": 5, "lock_until": past}, wantAttempts: 1, wantLock: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := runPipeline(t, tt.doc, loginFailurePipeline(now, policy))

			assert.Equal(t, tt.wantAttempts, doc["login_attempts"])
			assert.Equal(t, tt.wantLock, lockField(doc))
			assert.Equal(t, now, doc["updated_at"])

			// The in-process mirror must agree.
			u := &models.User{}
			if n, ok := tt.doc["login_attempts"].(int); ok {
				u.LoginAttempts = n
			}
			if at, ok := tt.doc["lock_until"].(time.Time); ok {
				u.LockUntil = &at
			}
			applyLoginFailure(u, now, policy)
			assert.Equal(t, tt.wantAttempts, u.LoginAttempts)
			if lock, ok := tt.wantLock.(time.Time); ok {
				require.NotNil(t, u.LockUntil)
				assert.True(t, lock.Equal(*u.LockUntil))
			} else {
				assert.Nil(t, u.LockUntil)
			}
		})
	}
}

func lockField(doc map[string]any) any {
	v, ok := doc["lock_until"]
	if !ok {
		return missingField{}
	}
	return v
}

// missingField is an absent document field, which $type reports as "missing".
type missingField struct{}

// runPipeline applies $set stages to doc, evaluating the aggregation
// expressions loginFailurePipeline uses.
func runPipeline(t *testing.T, doc map[string]any, pipeline mongo.Pipeline) map[string]any {
	t.Helper()
	cur := make(map[string]any, len(doc))
	for k, v := range doc {
		cur[k] = v
	}
	for _, stage := range pipeline {
		require.Len(t, stage, 1)
		require.Equal(t, "$set", stage[0].Key)
		fields, ok := stage[0].Value.(bson.D)
		require.True(t, ok)
		next := make(map[string]any, len(cur))
		for k, v := range cur {
			next[k] = v
		}
		for _, f := range fields {
			next[f.Key] = evalExpr(t, cur, f.Value)
		}
		cur = next
	}
	return cur
}

func evalExpr(t *testing.T, doc map[string]any, expr any) any {
	t.Helper()
	switch e := expr.(type) {
	case string:
		if strings.HasPrefix(e, "$") {
			v, ok := doc[e[1:]]
			if !ok {
				return missingField{}
			}
			return v
		}
		return e
	case bson.D:
		require.Len(t, e, 1)
		return evalOp(t, doc, e[0].Key, e[0].Value)
	default:
		return e
	}
}

func evalOp(t *testing.T, doc map[string]any, op string, arg any) any {
	t.Helper()
	if op == "$type" {
		switch evalExpr(t, doc, arg).(type) {
		case missingField:
			return "missing"
		case nil:
			return "null"
		case time.Time:
			return "date"
		case int:
			return "int"
		default:
			return "other"
		}
	}

	args, ok := arg.(bson.A)
	require.True(t, ok, "%s expects an array", op)
	eval := func(i int) any { return evalExpr(t, doc, args[i]) }

	switch op {
	case "$cond":
		if eval(0).(bool) {
			return eval(1)
		}
		return eval(2)
	case "$and":
		for i := range args {
			if !eval(i).(bool) {
				return false
			}
		}
		return true
	case "$not":
		return !eval(0).(bool)
	case "$eq":
		return eval(0) == eval(1)
	case "$ifNull":
		switch v := eval(0).(type) {
		case nil, missingField:
			return eval(1)
		default:
			return v
		}
	case "$add":
		sum := 0
		for i := range args {
			sum += eval(i).(int)
		}
		return sum
	case "$lte", "$gt", "$gte":
		c := compare(t, eval(0), eval(1))
		switch op {
		case "$lte":
			return c <= 0
		case "$gt":
			return c > 0
		default:
			return c >= 0
		}
	}
	t.Fatalf("unsupported operator %s", op)
	return nil
}

func compare(t *testing.T, a, b any) int {
	t.Helper()
	switch x := a.(type) {
	case time.Time:
		return x.Compare(b.(time.Time))
	case int:
		y := b.(int)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	t.Fatalf("cannot compare %T with %T", a, b)
	return 0
}

func TestRetryWindow(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		remaining time.Duration
		want      string
	}{
		{2 * time.Hour, "2 hours"},
		{90 * time.Minute, "2 hours"},
		{time.Hour, "1 hour"},
		{45 * time.Minute, "45 minutes"},
		{30 * time.Second, "1 minute"},
		{0, "1 minute"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryWindow(now.Add(tt.remaining), now), "remaining %s", tt.remaining)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
