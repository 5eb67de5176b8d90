package otp

import (
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "abcd1234abcd1234"

// t0 sits exactly on a 30s window boundary so offsets inside the test read
// as offsets into the window.
var t0 = time.UnixMilli(1_700_000_010_000)

func newTestEngine(t *testing.T, window time.Duration) *Engine {
	t.Helper()
	e, err := New(testSecret, window, WithClock(func() time.Time { return t0 }))
	require.NoError(t, err)
	return e
}

func TestNew_WindowBounds(t *testing.T) {
	cases := []struct {
		name   string
		window time.Duration
		ok     bool
	}{
		{"below minimum", 29999 * time.Millisecond, false},
		{"at minimum", 30 * time.Second, true},
		{"at maximum", 300 * time.Second, true},
		{"above maximum", 300001 * time.Millisecond, false},
		{"zero", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(testSecret, tc.window)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNew_EmptySecret(t *testing.T) {
	_, err := New("", 30*time.Second)
	assert.Error(t, err)
}

func TestDeriveCode_DeterministicAndWellFormed(t *testing.T) {
	e := newTestEngine(t, 30*time.Second)
	codePattern := regexp.MustCompile(`^[0-9A-F]{6}$`)

	for _, slot := range []int64{0, 1, 56_666_667, 1 << 40} {
		first := e.DeriveCode(slot)
		assert.Regexp(t, codePattern, first)
		assert.Equal(t, first, e.DeriveCode(slot), "same slot must derive the same code")
	}

	// Adjacent slots must not collide on the happy path we test with.
	assert.NotEqual(t, e.DeriveCode(100), e.DeriveCode(101))

	// A different secret changes the code.
	other, err := New("another-secret-value", 30*time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, e.DeriveCode(100), other.DeriveCode(100))
}

func TestCurrentCode(t *testing.T) {
	e := newTestEngine(t, 30*time.Second)

	now := t0.Add(12 * time.Second)
	cur := e.CurrentCode(now)

	slot := e.Slot(now)
	assert.Equal(t, e.DeriveCode(slot), cur.Code)
	assert.Equal(t, e.DeriveCode(slot+1), cur.NextCode)
	assert.Equal(t, t0.Add(30*time.Second).UTC(), cur.ExpiresAt)
	// 18s remain; 17.5s would still round up to 18.
	assert.Equal(t, 18, cur.ExpiresInSeconds)

	halfSecond := e.CurrentCode(t0.Add(29500 * time.Millisecond))
	assert.Equal(t, 1, halfSecond.ExpiresInSeconds)
}

func TestCurrentCode_ZeroTimeUsesClock(t *testing.T) {
	e := newTestEngine(t, 30*time.Second)
	cur := e.CurrentCode(time.Time{})
	assert.Equal(t, e.DeriveCode(e.Slot(t0)), cur.Code)
}

func TestValidate_WindowPriority(t *testing.T) {
	e := newTestEngine(t, 30*time.Second)
	slot := e.Slot(t0)

	cases := []struct {
		name   string
		code   string
		valid  bool
		reason Reason
	}{
		{"current window", e.DeriveCode(slot), true, ReasonCurrentWindow},
		{"previous window", e.DeriveCode(slot - 1), true, ReasonPreviousWindow},
		{"future window", e.DeriveCode(slot + 1), false, ReasonFutureOTP},
		{"two windows stale", e.DeriveCode(slot - 2), false, ReasonExpiredOrInvalid},
		{"two windows ahead", e.DeriveCode(slot + 2), false, ReasonExpiredOrInvalid},
		{"garbage", "ZZZZZZ", false, ReasonExpiredOrInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := e.Validate(tc.code, t0)
			assert.Equal(t, tc.valid, res.Valid)
			assert.Equal(t, tc.reason, res.Reason)
		})
	}
}

func TestValidate_Normalization(t *testing.T) {
	e := newTestEngine(t, 30*time.Second)
	code := e.DeriveCode(e.Slot(t0))

	res := e.Validate("  "+code+" ", t0)
	assert.True(t, res.Valid)

	res = e.Validate(strings.ToLower(code), t0)
	assert.True(t, res.Valid, "lowercase input must validate")
}

func TestValidate_InvalidFormat(t *testing.T) {
	e := newTestEngine(t, 30*time.Second)
	for _, bad := range []string{"", "12345", "1234567", "   ", "ABCDE"} {
		res := e.Validate(bad, t0)
		assert.False(t, res.Valid)
		assert.Equal(t, ReasonInvalidFormat, res.Reason, "input %q", bad)
	}
}

func TestValidate_ZeroReferenceUsesClock(t *testing.T) {
	e := newTestEngine(t, 30*time.Second)
	code := e.DeriveCode(e.Slot(t0))
	res := e.Validate(code, time.Time{})
	assert.True(t, res.Valid)
	assert.Equal(t, ReasonCurrentWindow, res.Reason)
}

// TestValidate_SlidingWindowScenario walks one code through its lifetime:
// fresh, inside the grace window, then stale.
func TestValidate_SlidingWindowScenario(t *testing.T) {
	e := newTestEngine(t, 30*time.Second)
	code := e.DeriveCode(e.Slot(t0))

	res := e.Validate(code, t0.Add(29*time.Second))
	assert.True(t, res.Valid)
	assert.Equal(t, ReasonCurrentWindow, res.Reason)

	res = e.Validate(code, t0.Add(31*time.Second))
	assert.True(t, res.Valid)
	assert.Equal(t, ReasonPreviousWindow, res.Reason)

	res = e.Validate(code, t0.Add(61*time.Second))
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonExpiredOrInvalid, res.Reason)
}

func TestEngine_ConcurrentUse(t *testing.T) {
	e := newTestEngine(t, 30*time.Second)
	code := e.DeriveCode(e.Slot(t0))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := e.Validate(code, t0)
			assert.True(t, res.Valid)
			_ = e.CurrentCode(t0)
		}()
	}
	wg.Wait()
}
