package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseSignal(t *testing.T) {
	tests := []struct {
		payload string
		id      string
		status  bool
		wantErr bool
	}{
		{"jti-1:true", "jti-1", true, false},
		{"jti-1:false", "jti-1", false, false},
		{"jti-1:on", "jti-1", true, false},
		{"urn:jti:42:true", "urn:jti:42", true, false},
		{"no-separator", "", false, true},
		{":true", "", false, true},
		{"jti-1:", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			id, status, err := ParseSignal(tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestListenResilient(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	syncs := make(chan struct{}, 1)
	got := make(chan string, 4)
	done := make(chan struct{})

	go func() {
		ListenResilient(ctx, rdb, zap.NewNop(), "test-chan",
			func() error { syncs <- struct{}{}; return nil },
			func(id string, status bool) {
				if status {
					got <- id
				}
			})
		close(done)
	}()

	select {
	case <-syncs:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not sync after subscribe")
	}

	require.NoError(t, rdb.Publish(context.Background(), "test-chan", "garbage").Err())
	require.NoError(t, rdb.Publish(context.Background(), "test-chan", "jti-7:true").Err())

	select {
	case id := <-got:
		assert.Equal(t, "jti-7", id)
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
