package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DharaniManchala/credit-card-fraud-detector/internal/domain"
)

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)

		_, err := bus.Subscribe(ctx, domain.TopicBatchScored, func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, domain.TopicBatchScored, []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		select {
		case msg := <-got:
			if string(msg.Payload) != "hello" {
				t.Errorf("expected payload 'hello', got '%s'", string(msg.Payload))
			}
			if msg.Topic != domain.TopicBatchScored {
				t.Errorf("expected topic %s, got %s", domain.TopicBatchScored, msg.Topic)
			}
			if msg.ID == "" || msg.Timestamp == 0 {
				t.Error("expected envelope id and timestamp")
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var other atomic.Int32
		done := make(chan struct{})

		bus.Subscribe(ctx, "isolation.a", func(ctx context.Context, msg *domain.Message) error {
			close(done)
			return nil
		})
		bus.Subscribe(ctx, "isolation.b", func(ctx context.Context, msg *domain.Message) error {
			other.Add(1)
			return nil
		})

		bus.Publish(ctx, "isolation.a", []byte("x"))
		waitFor(t, done)

		if other.Load() != 0 {
			t.Errorf("message leaked to other topic")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		first := make(chan struct{}, 1)

		sub, _ := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			first <- struct{}{}
			return nil
		})

		bus.Publish(ctx, "unsub.topic", []byte("msg1"))
		waitFor(t, first)

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}

		// No subscribers left, so publish succeeds and delivers nothing.
		if err := bus.Publish(ctx, "unsub.topic", []byte("msg2")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		time.Sleep(20 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)

		for i := 0; i < 2; i++ {
			bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
				wg.Done()
				return nil
			})
		}

		bus.Publish(ctx, "multi.topic", []byte("broadcast"))

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		waitFor(t, done)
	})

	t.Run("HandlerErrorDoesNotStopSubscription", func(t *testing.T) {
		var calls atomic.Int32
		second := make(chan struct{})

		bus.Subscribe(ctx, "failing.topic", func(ctx context.Context, msg *domain.Message) error {
			if calls.Add(1) == 2 {
				close(second)
			}
			return errors.New("boom")
		})

		bus.Publish(ctx, "failing.topic", []byte("1"))
		bus.Publish(ctx, "failing.topic", []byte("2"))
		waitFor(t, second)
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if sub.Topic() != domain.TopicAlert {
			t.Errorf("expected topic %s, got %s", domain.TopicAlert, sub.Topic())
		}
	})
}

func TestChannelBusFull(t *testing.T) {
	bus := NewChannelBus(1)
	defer bus.Close()

	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	bus.Subscribe(ctx, "slow.topic", func(ctx context.Context, msg *domain.Message) error {
		select {
		case started <- struct{}{}:
		default:
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	})

	// First message is held by the handler, second fills the queue.
	if err := bus.Publish(ctx, "slow.topic", []byte("1")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	waitFor(t, started)
	if err := bus.Publish(ctx, "slow.topic", []byte("2")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	err := bus.Publish(ctx, "slow.topic", []byte("3"))
	if !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got: %v", err)
	}
	close(release)
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	if err := bus.Publish(ctx, "close.topic", []byte("data")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got: %v", err)
	}
	if _, err := bus.Subscribe(ctx, "close.topic", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on subscribe, got: %v", err)
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		if _, ok := bus.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("NATSUnreachable", func(t *testing.T) {
		_, err := New(domain.EventBusConfig{
			Type:              "nats",
			NATSUrl:           "nats://127.0.0.1:1",
			NATSMaxReconnects: 1,
			NATSReconnectWait: 1,
		})
		if err == nil {
			t.Error("expected connection error")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	const messageCount = 100

	var received atomic.Int32
	var wg sync.WaitGroup
	wg.Add(messageCount)

	bus.Subscribe(ctx, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	for i := 0; i < messageCount; i++ {
		if err := bus.Publish(ctx, "load.topic", []byte("msg")); err != nil {
			t.Fatalf("publish %d failed: %v", i, err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if received.Load() != messageCount {
			t.Errorf("expected %d messages, got %d", messageCount, received.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: received %d/%d messages", received.Load(), messageCount)
	}
}
