package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/roam/pkg/domain"
)

type reply struct {
	Answer string
}

func TestCall_PrimarySucceeds(t *testing.T) {
	fallbackUsed := false

	out, err := Call(context.Background(), Options{Stage: "planner"},
		func(context.Context) (*reply, error) { return &reply{Answer: "ok"}, nil },
		func(context.Context) (*reply, error) {
			fallbackUsed = true
			return &reply{Answer: "fallback"}, nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", out.Answer)
	assert.False(t, fallbackUsed)
}

func TestCall_FallsBackOnError(t *testing.T) {
	var fellBack string

	out, err := Call(context.Background(), Options{
		Stage:      "decision",
		OnFallback: func(stage string, cause error) { fellBack = stage },
	},
		func(context.Context) (*reply, error) { return nil, errors.New("rate limited") },
		func(context.Context) (*reply, error) { return &reply{Answer: "rescued"}, nil })

	require.NoError(t, err)
	assert.Equal(t, "rescued", out.Answer)
	assert.Equal(t, "decision", fellBack)
}

func TestCall_FallsBackOnNilResult(t *testing.T) {
	out, err := Call(context.Background(), Options{Stage: "executor"},
		func(context.Context) (*reply, error) { return nil, nil },
		func(context.Context) (*reply, error) { return &reply{Answer: "rescued"}, nil })

	require.NoError(t, err)
	assert.Equal(t, "rescued", out.Answer)
}

func TestCall_BothFailingWrapsInferenceError(t *testing.T) {
	_, err := Call(context.Background(), Options{Stage: "planner"},
		func(context.Context) (*reply, error) { return nil, errors.New("primary down") },
		func(context.Context) (*reply, error) { return nil, errors.New("fallback down") })

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInference)
	assert.Contains(t, err.Error(), "primary down")
	assert.Contains(t, err.Error(), "fallback down")
}

func TestCall_SlowNoticeFiresWithoutCancelling(t *testing.T) {
	noticed := make(chan struct{}, 1)

	out, err := Call(context.Background(), Options{
		Stage:       "collector",
		NoticeAfter: 5 * time.Millisecond,
		OnNotice:    func(string, time.Duration) { noticed <- struct{}{} },
	},
		func(ctx context.Context) (*reply, error) {
			time.Sleep(30 * time.Millisecond)
			return &reply{Answer: "slow but fine"}, nil
		},
		func(context.Context) (*reply, error) { return nil, errors.New("unused") })

	require.NoError(t, err)
	assert.Equal(t, "slow but fine", out.Answer)
	select {
	case <-noticed:
	default:
		t.Fatal("expected the slow notice to fire")
	}
}

func TestIsNil(t *testing.T) {
	var p *reply
	var m map[string]int
	assert.True(t, isNil(nil))
	assert.True(t, isNil(p))
	assert.True(t, isNil(m))
	assert.False(t, isNil(&reply{}))
	assert.False(t, isNil(42))
	assert.False(t, isNil("x"))
}
