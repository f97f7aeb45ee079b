package auth

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"mailgate/internal/apperr"
)

const testSecret = "test-secret-with-enough-entropy"

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newTestClock() *testClock { return &testClock{now: testEpoch} }

// Now returns the current time and then moves forward by step, if set.
func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	principals, err := BuildPrincipals(DefaultSeed(), bcrypt.MinCost)
	require.NoError(t, err)
	reg, err := NewRegistry(principals)
	require.NoError(t, err)
	return reg
}

func newTestCodec(t *testing.T, clock *testClock, opts ...CodecOption) *Codec {
	t.Helper()
	opts = append([]CodecOption{WithClock(clock.Now)}, opts...)
	codec, err := NewCodec(testSecret, time.Hour, opts...)
	require.NoError(t, err)
	return codec
}

type fixture struct {
	clock    *testClock
	registry *Registry
	codec    *Codec
	sessions *MemorySessionStore
	gateway  *Gateway
	observed *recordingObserver
}

func newFixture(t *testing.T, mode SessionMode) *fixture {
	t.Helper()
	f := &fixture{clock: newTestClock(), registry: newTestRegistry(t), observed: &recordingObserver{}}
	f.codec = newTestCodec(t, f.clock)
	f.sessions = NewMemorySessionStore(mode, f.clock.Now)
	f.gateway = NewGateway(f.registry, f.codec, f.sessions, WithObserver(f.observed))
	return f
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveAuthentication(flow, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, flow+":"+result)
}

func (o *recordingObserver) Calls() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.calls...)
}

type recordingErrorWriter struct {
	errs []error
}

func (e *recordingErrorWriter) WriteError(w http.ResponseWriter, _ *http.Request, err error) {
	e.errs = append(e.errs, err)
	w.WriteHeader(apperr.KindOf(err).Status())
}

func (e *recordingErrorWriter) lastKind() apperr.Kind {
	if len(e.errs) == 0 {
		return -1
	}
	return apperr.KindOf(e.errs[len(e.errs)-1])
}

func assertKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind.String(), apperr.KindOf(err).String(), err.Error())
}
