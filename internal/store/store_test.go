package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"daraja-mcp/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notification(checkoutID string) model.PaymentNotification {
	return model.PaymentNotification{
		MerchantRequestID: "m-" + checkoutID,
		CheckoutRequestID: checkoutID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
	}
}

func withReceipt(n model.PaymentNotification, receipt string) model.PaymentNotification {
	n.MpesaReceiptNumber = &receipt
	return n
}

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, DefaultCapacity, New(-3).Capacity())
	assert.Equal(t, 7, New(7).Capacity())
}

func TestAdd_BoundedSize(t *testing.T) {
	const capacity = 5
	s := New(capacity)

	for i := 1; i <= 3*capacity; i++ {
		s.Add(notification(fmt.Sprintf("ws_CO_%d", i)))
		assert.Equal(t, min(i, capacity), s.Len())
	}
}

func TestAdd_MostRecentFirst(t *testing.T) {
	s := New(10)
	s.Add(notification("A"))
	s.Add(notification("B"))

	recent := s.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "B", recent[0].CheckoutRequestID)
	assert.Equal(t, "A", recent[1].CheckoutRequestID)
}

func TestAdd_EvictsOldestRegardlessOfReadState(t *testing.T) {
	const capacity = 3
	s := New(capacity)

	s.Add(notification("first"))
	s.MarkRead("first")
	for i := 0; i < capacity; i++ {
		s.Add(notification(fmt.Sprintf("next-%d", i)))
	}

	recent := s.Recent(capacity + 1)
	assert.Len(t, recent, capacity)
	_, found := s.FindByCheckoutID("first")
	assert.False(t, found)
	for _, n := range recent {
		assert.NotEqual(t, "first", n.CheckoutRequestID)
	}
}

func TestAdd_StampsAndResetsReadFlag(t *testing.T) {
	at := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	s := New(10).WithClock(func() time.Time { return at })

	n := notification("X")
	n.Read = true
	stored := s.Add(n)

	assert.False(t, stored.Read)
	assert.Equal(t, at, stored.ReceivedAt)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestRecent_Limits(t *testing.T) {
	s := New(10)
	assert.Empty(t, s.Recent(10))
	assert.NotNil(t, s.Recent(10))

	s.Add(notification("A"))
	s.Add(notification("B"))

	assert.Empty(t, s.Recent(0))
	assert.Empty(t, s.Recent(-1))
	assert.Len(t, s.Recent(1), 1)
	assert.Len(t, s.Recent(50), 2)
}

func TestFindByCheckoutID(t *testing.T) {
	s := New(10)
	first := notification("dup")
	first.ResultDesc = "older"
	s.Add(first)
	second := notification("dup")
	second.ResultDesc = "newer"
	s.Add(second)
	s.Add(notification("other"))

	got, found := s.FindByCheckoutID("dup")
	require.True(t, found)
	assert.Equal(t, "newer", got.ResultDesc)
	assert.Equal(t, 3, s.Len())

	_, found = s.FindByCheckoutID("missing")
	assert.False(t, found)
}

func TestFindByReceipt(t *testing.T) {
	s := New(10)
	s.Add(notification("no-receipt"))
	s.Add(withReceipt(notification("with-receipt"), "QUICKTEST123"))

	got, found := s.FindByReceipt("QUICKTEST123")
	require.True(t, found)
	assert.Equal(t, "with-receipt", got.CheckoutRequestID)

	_, found = s.FindByReceipt("NOPE")
	assert.False(t, found)
}

func TestMarkRead_Idempotent(t *testing.T) {
	s := New(10)
	s.Add(notification("A"))

	assert.True(t, s.MarkRead("A"))
	assert.True(t, s.MarkRead("A"))

	got, found := s.FindByCheckoutID("A")
	require.True(t, found)
	assert.True(t, got.Read)
}

func TestMarkRead_UnknownIDMutatesNothing(t *testing.T) {
	s := New(10)
	s.Add(notification("A"))
	before := s.Recent(10)

	assert.False(t, s.MarkRead("B"))
	assert.Equal(t, before, s.Recent(10))
	assert.Equal(t, 1, s.UnreadCount())
}

func TestUnreadCount(t *testing.T) {
	s := New(10)
	for _, id := range []string{"A", "B", "C"} {
		s.Add(notification(id))
	}
	assert.Equal(t, 3, s.UnreadCount())

	s.MarkRead("B")
	assert.Equal(t, 2, s.UnreadCount())

	unread := s.Unread()
	require.Len(t, unread, 2)
	assert.Equal(t, "C", unread[0].CheckoutRequestID)
	assert.Equal(t, "A", unread[1].CheckoutRequestID)
}

func TestRecentWithUnread(t *testing.T) {
	s := New(10)
	for _, id := range []string{"A", "B", "C"} {
		s.Add(notification(id))
	}
	s.MarkRead("C")

	recent, unread := s.RecentWithUnread(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "C", recent[0].CheckoutRequestID)
	assert.Equal(t, 2, unread)

	recent, unread = s.RecentWithUnread(0)
	assert.Empty(t, recent)
	assert.Equal(t, 2, unread)
}

func TestRecentWithUnread_ConsistentUnderWrites(t *testing.T) {
	const capacity = 5
	s := New(capacity)
	for i := 0; i < capacity; i++ {
		s.Add(notification(fmt.Sprintf("seed-%d", i)))
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	defer func() {
		close(stop)
		wg.Wait()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			id := fmt.Sprintf("id-%d", i)
			s.Add(notification(id))
			s.MarkRead(id)
		}
	}()

	for i := 0; i < 200; i++ {
		recent, unread := s.RecentWithUnread(capacity)
		counted := 0
		for _, n := range recent {
			if !n.Read {
				counted++
			}
		}
		require.Len(t, recent, capacity)
		require.Equal(t, counted, unread)
	}
}

func TestSummary(t *testing.T) {
	s := New(10)
	s.Add(notification("A"))
	s.Add(notification("B"))
	s.MarkRead("A")

	assert.Equal(t, model.Summary{
		Total:       2,
		Unread:      1,
		Read:        1,
		CallbackURL: "https://example.com/mpesa/callback",
	}, s.Summary("https://example.com/mpesa/callback"))
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s := New(10)
	s.Add(withReceipt(notification("A"), "R1"))

	got := s.Recent(1)
	got[0].Read = true
	*got[0].MpesaReceiptNumber = "CHANGED"

	again, found := s.FindByCheckoutID("A")
	require.True(t, found)
	assert.False(t, again.Read)
	assert.Equal(t, "R1", *again.MpesaReceiptNumber)
}

func TestConcurrentAccess(t *testing.T) {
	const capacity = 20
	s := New(capacity)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Add(notification(fmt.Sprintf("id-%d", i)))
		}(i)
		go func(i int) {
			defer wg.Done()
			s.MarkRead(fmt.Sprintf("id-%d", i-1))
			_ = s.Recent(5)
			_ = s.Summary("")
		}(i)
	}
	wg.Wait()

	summary := s.Summary("")
	assert.Equal(t, capacity, summary.Total)
	assert.Equal(t, summary.Total, summary.Read+summary.Unread)
}
