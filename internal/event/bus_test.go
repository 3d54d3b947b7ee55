package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus := NewLocalBus(nil)
	var got []string
	bus.Subscribe("task.created", func(ctx context.Context, payload any) error {
		got = append(got, "first:"+payload.(string))
		return nil
	})
	bus.Subscribe("task.created", func(ctx context.Context, payload any) error {
		got = append(got, "second:"+payload.(string))
		return nil
	})
	bus.Subscribe("task.completed", func(ctx context.Context, payload any) error {
		got = append(got, "other")
		return nil
	})

	bus.Publish(context.Background(), "task.created", "t1")
	assert.Equal(t, []string{"first:t1", "second:t1"}, got)
}

func TestLocalBus_IsolatesFailures(t *testing.T) {
	bus := NewLocalBus(nil)
	calls := 0
	bus.Subscribe("task.created", func(ctx context.Context, payload any) error {
		return errors.New("boom")
	})
	bus.Subscribe("task.created", func(ctx context.Context, payload any) error {
		panic("handler exploded")
	})
	bus.Subscribe("task.created", func(ctx context.Context, payload any) error {
		calls++
		return nil
	})

	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), "task.created", nil)
	})
	assert.Equal(t, 1, calls)
}

func TestLocalBus_NoSubscribers(t *testing.T) {
	bus := NewLocalBus(nil)
	assert.NotPanics(t, func() {
		bus.Publish(context.Background(), "nothing.here", 42)
	})
}

func TestLocalBus_SubscribeDuringPublish(t *testing.T) {
	bus := NewLocalBus(nil)
	late := 0
	bus.Subscribe("e", func(ctx context.Context, payload any) error {
		bus.Subscribe("e", func(ctx context.Context, payload any) error {
			late++
			return nil
		})
		return nil
	})

	bus.Publish(context.Background(), "e", nil)
	assert.Equal(t, 0, late, "handlers added mid-publish wait for the next event")
	bus.Publish(context.Background(), "e", nil)
	assert.Equal(t, 1, late)
}
