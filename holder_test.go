package triava

import (
	"math/rand"
	"testing"
	"time"
)

func TestCompactTimeRoundTripsSeconds(t *testing.T) {
	d := 45 * time.Second
	ct := newCompactTime(d)
	if got := ct.Duration(); got != d {
		t.Errorf("round trip: got %v, want %v", got, d)
	}
}

func TestCompactTimeRoundTripsMillis(t *testing.T) {
	d := 450 * time.Millisecond
	ct := newCompactTime(d)
	if got := ct.Duration(); got != d {
		t.Errorf("round trip: got %v, want %v", got, d)
	}
}

func TestCompactTimeZeroIsUnbounded(t *testing.T) {
	ct := newCompactTime(0)
	if ct.millis() != 0 {
		t.Errorf("millis() = %d, want 0", ct.millis())
	}
}

func TestHolderGetAfterComplete(t *testing.T) {
	clock := newCoarseClock(5 * time.Millisecond)
	defer clock.Close()

	h, err := newHolder[string]("v1", WriteModeIdentity, noopCodec[string]{})
	if err != nil {
		t.Fatalf("newHolder: %v", err)
	}
	h.complete(clock, time.Minute, time.Hour)

	v, ok, err := h.get(clock, noopCodec[string]{})
	if err != nil || !ok || v != "v1" {
		t.Errorf("get() = %q, %v, %v; want v1, true, nil", v, ok, err)
	}
}

func TestHolderIsInvalidBeforeComplete(t *testing.T) {
	h, err := newHolder[string]("v1", WriteModeIdentity, noopCodec[string]{})
	if err != nil {
		t.Fatalf("newHolder: %v", err)
	}
	if !h.isInvalid(0) {
		t.Error("an incomplete holder must be invalid")
	}
}

func TestHolderExpiresOnMaxIdle(t *testing.T) {
	clock := newCoarseClock(5 * time.Millisecond)
	defer clock.Close()

	h, _ := newHolder[string]("v1", WriteModeIdentity, noopCodec[string]{})
	h.complete(clock, 10*time.Millisecond, 0)

	now := clock.nowMillis()
	if h.isInvalid(now) {
		t.Error("freshly completed holder should not be invalid yet")
	}
	later := now + 50
	if !h.isInvalid(later) {
		t.Error("holder should be invalid after exceeding max idle time")
	}
}

func TestHolderReleaseIsOneShot(t *testing.T) {
	h, _ := newHolder[string]("v1", WriteModeIdentity, noopCodec[string]{})
	if !h.release() {
		t.Error("first release() should return true")
	}
	if h.release() {
		t.Error("second release() should return false")
	}
}

func TestHolderSerializedRoundTrip(t *testing.T) {
	codec := GobCodec[string]{}
	h, err := newHolder[string]("encoded", WriteModeSerialize, codec)
	if err != nil {
		t.Fatalf("newHolder: %v", err)
	}
	v, ok, err := h.peek(codec)
	if err != nil || !ok || v != "encoded" {
		t.Errorf("peek() = %q, %v, %v; want encoded, true, nil", v, ok, err)
	}
}

func TestSetExpireUntilNeverLoosens(t *testing.T) {
	clock := newCoarseClock(5 * time.Millisecond)
	defer clock.Close()

	h, _ := newHolder[string]("v1", WriteModeIdentity, noopCodec[string]{})
	h.complete(clock, 0, time.Second)

	rnd := rand.New(rand.NewSource(1))
	natural := h.naturalDeadline()

	h.setExpireUntil(clock, 10*time.Second, rnd)
	if got := h.expireUntil.Load(); got != 0 && got > natural {
		t.Errorf("setExpireUntil extended past the natural deadline: got %d, natural %d", got, natural)
	}
}
