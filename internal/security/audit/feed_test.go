package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/endlessblink/Gear-Pool/internal/domain"
)

func TestFeedDeliversToTenantSubscribersOnly(t *testing.T) {
	f := NewFeed()
	ch1, cancel1 := f.Subscribe("t1")
	defer cancel1()
	ch2, cancel2 := f.Subscribe("t2")
	defer cancel2()

	f.Publish(&domain.AuditLogEntry{TenantID: "t1", Sequence: 1})

	got := <-ch1
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.Sequence)
	select {
	case e := <-ch2:
		t.Fatalf("unexpected entry for other tenant: %+v", e)
	default:
	}
}

func TestFeedDropsWhenSubscriberIsFull(t *testing.T) {
	f := NewFeed()
	ch, cancel := f.Subscribe("t1")
	for i := 0; i < subscriberBuffer+10; i++ {
		f.Publish(&domain.AuditLogEntry{TenantID: "t1", Sequence: int64(i)})
	}
	assert.Len(t, ch, subscriberBuffer)

	cancel()
	cancel()
	assert.Equal(t, 0, f.Subscribers("t1"))
}

func TestFeedCloseEndsSubscriptions(t *testing.T) {
	f := NewFeed()
	ch, cancel := f.Subscribe("t1")
	f.Close()
	_, open := <-ch
	assert.False(t, open)
	cancel()

	ch, _ = f.Subscribe("t1")
	_, open = <-ch
	assert.False(t, open)
}
