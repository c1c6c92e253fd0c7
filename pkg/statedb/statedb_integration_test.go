//go:build integration

package statedb

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/newtron-network/chassis/internal/testutil"
	"github.com/newtron-network/chassis/pkg/chassis"
	"github.com/newtron-network/chassis/pkg/model"
)

func redisClient(t *testing.T) *Client {
	t.Helper()
	testutil.SkipIfNoRedis(t)
	addr := testutil.RedisAddr()
	testutil.FlushDB(t, addr, DB)

	c := NewClient(addr)
	t.Cleanup(func() { c.Close() })
	if err := c.Connect(testutil.Context(t)); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return c
}

func TestClientEntries(t *testing.T) {
	c := redisClient(t)
	ctx := testutil.Context(t)

	key := PortKey(1, 1)
	if err := c.SetEntry(ctx, key, map[string]string{"name": "eth1", "mtu": "9000"}); err != nil {
		t.Fatalf("SetEntry() error = %v", err)
	}
	// SetEntry replaces the hash rather than merging into it.
	if err := c.SetEntry(ctx, key, map[string]string{"name": "eth1"}); err != nil {
		t.Fatalf("SetEntry() error = %v", err)
	}
	got := testutil.ReadEntry(t, testutil.RedisAddr(), DB, key)
	if len(got) != 1 || got["name"] != "eth1" {
		t.Errorf("entry = %v", got)
	}

	testutil.WriteEntry(t, testutil.RedisAddr(), DB, "OTHER_TABLE|x", map[string]string{"a": "b"})
	keys, err := c.Keys(ctx, PortTable)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 1 || keys[0] != key {
		t.Errorf("Keys() = %v", keys)
	}

	if err := c.DeleteEntry(ctx, key); err != nil {
		t.Fatalf("DeleteEntry() error = %v", err)
	}
	if e, err := c.GetPort(ctx, 1, 1); err != nil || e != nil {
		t.Errorf("GetPort() after delete = %v, %v", e, err)
	}
}

func TestMirrorAgainstRedis(t *testing.T) {
	c := redisClient(t)
	ctx := testutil.Context(t)

	sub := c.Subscribe(ctx, EventChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m, _, _, _ := newMirrored(t)
	m.UnregisterEventWriter()
	mirror := NewMirror(c, m)
	m.RegisterEventWriter(mirror)

	testutil.WriteEntry(t, testutil.RedisAddr(), DB, PortKey(1, 9), map[string]string{"name": "stale"})
	if err := m.PushConfig(ctx, testConfig(tapPort(1, 1, model.AdminStateEnabled))); err != nil {
		t.Fatalf("PushConfig() error = %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var ev chassis.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			t.Fatalf("event payload %q: %v", msg.Payload, err)
		}
		if ev.Node != 1 || ev.Port != 1 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event published")
	}

	e, err := c.GetPort(ctx, 1, 1)
	if err != nil || e == nil {
		t.Fatalf("GetPort() = %v, %v", e, err)
	}
	if e.AdminStatus != "enabled" || e.Programmed != "true" {
		t.Errorf("entry = %+v", e)
	}

	if err := mirror.Sync(ctx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if testutil.EntryExists(t, testutil.RedisAddr(), DB, PortKey(1, 9)) {
		t.Error("stale port survived Sync")
	}
}
