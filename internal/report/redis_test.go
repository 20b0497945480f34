package report

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/danmuck/receiptctl/internal/testutil/testlog"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisSinkStoresAndCaps(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	mr, client := newTestRedis(t)
	sink := NewRedisSinkFromClient(client, WithKey("test:receipts"), WithMaxEntries(2))
	require.NoError(t, sink.Ping(ctx))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, sink.Publish(ctx, Report{
			ID:             id,
			ReceivedAt:     time.Unix(1700000000, 0).UTC(),
			DecoderStatus:  DecoderSuccess,
			PrinterStatus:  PrinterSuccess,
			ReceiptContent: Content{Lines: []string{"line " + id}},
		}))
	}

	stored, err := mr.List("test:receipts")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	var newest Report
	require.NoError(t, json.Unmarshal([]byte(stored[0]), &newest))
	assert.Equal(t, "c", newest.ID)
	assert.Equal(t, []string{"line c"}, newest.ReceiptContent.Lines)

	recent, err := sink.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids(recent))

	recent, err = sink.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(recent))
}

func TestRedisSinkAnnouncesOnChannel(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	_, client := newTestRedis(t)
	sink := NewRedisSinkFromClient(client, WithChannel("test:events"))

	sub := client.Subscribe(ctx, "test:events")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, sink.Publish(ctx, Report{ID: "job-7", PrinterStatus: PrinterError}))

	select {
	case msg := <-sub.Channel():
		var got Report
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "job-7", got.ID)
		assert.Equal(t, PrinterError, got.PrinterStatus)
	case <-time.After(2 * time.Second):
		t.Fatal("no message on channel")
	}
}

func TestRedisSinkReportsUnavailableServer(t *testing.T) {
	testlog.Start(t)
	mr, client := newTestRedis(t)
	sink := NewRedisSinkFromClient(client)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, sink.Publish(ctx, Report{ID: "lost"}))
}
