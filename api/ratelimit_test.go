package api

import (
	"net/http"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLimiter returns a limiter driven by a manual clock.
func newTestLimiter(policy backoffPolicy) (*backoffLimiter, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := newBackoffLimiter(policy)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_AllowsBeforeThreshold(t *testing.T) {
	rl, _ := newTestLimiter(loginPolicy)
	for i := 0; i < loginPolicy.maxFailures-1; i++ {
		rl.recordFailure("a@b.com")
		blocked, _ := rl.check("a@b.com")
		assert.False(t, blocked, "should not block before reaching maxFailures")
	}
}

func TestRateLimiter_BlocksAfterThreshold(t *testing.T) {
	rl, _ := newTestLimiter(loginPolicy)
	for i := 0; i < loginPolicy.maxFailures; i++ {
		rl.recordFailure("a@b.com")
	}
	blocked, retryAfter := rl.check("a@b.com")
	require.True(t, blocked)
	assert.Equal(t, loginPolicy.baseLockout, retryAfter)
}

func TestRateLimiter_ExponentialBackoffIsCapped(t *testing.T) {
	rl, _ := newTestLimiter(loginPolicy)
	for i := 0; i < loginPolicy.maxFailures+1; i++ {
		rl.recordFailure("a@b.com")
	}
	_, retryAfter := rl.check("a@b.com")
	assert.Equal(t, 2*loginPolicy.baseLockout, retryAfter)

	for i := 0; i < 20; i++ {
		rl.recordFailure("a@b.com")
	}
	_, retryAfter = rl.check("a@b.com")
	assert.Equal(t, loginPolicy.maxLockout, retryAfter)
}

func TestRateLimiter_LockoutElapses(t *testing.T) {
	rl, now := newTestLimiter(loginPolicy)
	for i := 0; i < loginPolicy.maxFailures; i++ {
		rl.recordFailure("a@b.com")
	}
	*now = now.Add(loginPolicy.baseLockout)
	blocked, _ := rl.check("a@b.com")
	assert.False(t, blocked)
}

func TestRateLimiter_SuccessResetsAndIsolatesKeys(t *testing.T) {
	rl, _ := newTestLimiter(loginPolicy)
	for i := 0; i < loginPolicy.maxFailures; i++ {
		rl.recordFailure("a@b.com")
	}
	blocked, _ := rl.check("c@d.com")
	assert.False(t, blocked, "other accounts are unaffected")

	rl.recordSuccess("a@b.com")
	blocked, _ = rl.check("a@b.com")
	assert.False(t, blocked)
}

func TestRateLimiter_SweepRemovesExpired(t *testing.T) {
	rl, now := newTestLimiter(ipPolicy)
	rl.recordFailure("10.0.0.1")
	*now = now.Add(ipPolicy.expiry / 2)
	rl.recordFailure("10.0.0.2")

	*now = now.Add(ipPolicy.expiry/2 + time.Second)
	rl.sweep()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.attempts, "10.0.0.1")
	assert.Contains(t, rl.attempts, "10.0.0.2")
}

func TestRetryAfterString(t *testing.T) {
	assert.Equal(t, "1", retryAfterString(0))
	assert.Equal(t, "1", retryAfterString(300*time.Millisecond))
	assert.Equal(t, "90", retryAfterString(90*time.Second))
}

func TestExtractClientIP(t *testing.T) {
	trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		proxies []netip.Prefix
		want    string
	}{
		{name: "remote addr", remote: "192.0.2.1:5000", want: "192.0.2.1"},
		{
			name:    "untrusted proxy headers ignored",
			remote:  "192.0.2.1:5000",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:    "192.0.2.1",
		},
		{
			name:    "xff from trusted proxy",
			remote:  "10.1.2.3:443",
			headers: map[string]string{"X-Forwarded-For": "garbage, 203.0.113.9, 198.51.100.1"},
			proxies: trusted,
			want:    "203.0.113.9",
		},
		{
			name:    "forwarded header",
			remote:  "10.1.2.3:443",
			headers: map[string]string{"Forwarded": `for="[2001:db8::1]:4711";proto=https`},
			proxies: trusted,
			want:    "2001:db8::1",
		},
		{
			name:    "x-real-ip fallback",
			remote:  "10.1.2.3:443",
			headers: map[string]string{"X-Real-IP": "198.51.100.7"},
			proxies: trusted,
			want:    "198.51.100.7",
		},
		{name: "ipv6 zone dropped", remote: "[fe80::1%eth0]:80", want: "fe80::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := http.NewRequest(http.MethodGet, "/", nil)
			require.NoError(t, err)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, extractClientIPWithProxies(r, tt.proxies))
		})
	}
}

func TestAPIExtractClientIPUsesTrustedProxies(t *testing.T) {
	a := &API{}
	WithTrustedProxies([]netip.Prefix{netip.MustParsePrefix("127.0.0.1/32")})(a)

	r, err := http.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, err)
	r.RemoteAddr = "127.0.0.1:1234"
	r.Header.Set("X-Forwarded-For", "203.0.113.50")
	assert.Equal(t, "203.0.113.50", a.extractClientIP(r))
}
