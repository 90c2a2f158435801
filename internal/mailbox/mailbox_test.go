package mailbox_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cascandaliato/restarter/internal/mailbox"
)

func TestSetCoalescesToLatestPayload(t *testing.T) {
	m := mailbox.New()
	m.Set(1)
	m.Set(2)
	m.Set(3)

	v, ok := m.GetNowait()
	require.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = m.GetNowait()
	assert.False(t, ok, "mailbox should hold at most one payload")
}

func TestGetNowaitOnEmptyMailbox(t *testing.T) {
	m := mailbox.New()
	_, ok := m.GetNowait()
	assert.False(t, ok)
	assert.True(t, m.Empty())
}

func TestGetBlocksUntilSet(t *testing.T) {
	m := mailbox.New()
	done := make(chan any, 1)
	go func() {
		done <- m.Get()
	}()

	select {
	case <-done:
		t.Fatal("Get returned before Set was called")
	case <-time.After(50 * time.Millisecond):
	}

	m.Set("payload")

	select {
	case v := <-done:
		assert.Equal(t, "payload", v)
	case <-time.After(time.Second):
		t.Fatal("Get did not unblock after Set")
	}
}
