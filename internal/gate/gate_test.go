package gate

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccastromar/availability-gate/internal/mgmt"
	"github.com/ccastromar/availability-gate/internal/readiness"
)

// fakeSource records registrations and hands events to listeners synchronously.
type fakeSource struct {
	mu        sync.Mutex
	calls     int
	names     []string
	listeners []mgmt.Listener
	err       error
	delay     time.Duration
}

func (f *fakeSource) AddListener(name string, l mgmt.Listener) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.names = append(f.names, name)
	if f.err != nil {
		return f.err
	}
	f.listeners = append(f.listeners, l)
	return nil
}

func (f *fakeSource) fire(source, kind string) {
	f.mu.Lock()
	ls := append([]mgmt.Listener(nil), f.listeners...)
	f.mu.Unlock()
	for _, l := range ls {
		l.HandleEvent(mgmt.Event{ID: "test", Source: source, Kind: kind, Timestamp: time.Now()})
	}
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type panickySource struct{}

func (panickySource) AddListener(string, mgmt.Listener) error { panic("management server down") }

// countingNext answers 200 and counts delegations.
type countingNext struct{ n atomic.Int32 }

func (c *countingNext) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.n.Add(1)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("next"))
}

const testDeployment = "shop.war"

var testConfig = Config{PathPattern: "/health.*", DeploymentName: testDeployment}

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestGate_MatchingPathBeforeReady_Returns503(t *testing.T) {
	src := &fakeSource{}
	next := &countingNext{}
	h := New(testConfig, src, next)

	rr := serve(h, "/health/live")

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Empty(t, rr.Body.String())
	require.Equal(t, int32(0), next.n.Load())
}

func TestGate_NonMatchingPathBeforeReady_Delegates(t *testing.T) {
	src := &fakeSource{}
	next := &countingNext{}
	h := New(testConfig, src, next)

	rr := serve(h, "/other")

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "next", rr.Body.String())
	require.Equal(t, int32(1), next.n.Load())
	require.False(t, h.Ready())
}

func TestGate_RegistrationNotFound_FailsOpen(t *testing.T) {
	src := &fakeSource{err: mgmt.ErrInstanceNotFound}
	next := &countingNext{}
	h := New(testConfig, src, next)

	rr := serve(h, "/health/live")

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, int32(1), next.n.Load())
	require.True(t, h.Ready())
}

func TestGate_RegistrationMalformed_FailsOpen(t *testing.T) {
	src := &fakeSource{err: mgmt.ErrMalformedName}
	h := New(testConfig, src, &countingNext{})

	require.NoError(t, h.Init())
	require.True(t, h.Ready())
}

func TestGate_NilSource_FailsOpen(t *testing.T) {
	h := New(testConfig, nil, &countingNext{})

	rr := serve(h, "/health/ready")

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestGate_DeployedEvent_OpensGate(t *testing.T) {
	src := &fakeSource{}
	next := &countingNext{}
	h := New(testConfig, src, next)

	require.Equal(t, http.StatusServiceUnavailable, serve(h, "/health/live").Code)

	src.fire(mgmt.DeploymentName(testDeployment), mgmt.KindDeploymentDeployed)

	rr := serve(h, "/health/live")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, int32(1), next.n.Load())
}

func TestGate_EventFromOtherDeployment_KeepsGateClosed(t *testing.T) {
	src := &fakeSource{}
	h := New(testConfig, src, &countingNext{})
	require.NoError(t, h.Init())

	src.fire(mgmt.DeploymentName("other.war"), mgmt.KindDeploymentDeployed)

	require.Equal(t, http.StatusServiceUnavailable, serve(h, "/health/live").Code)
}

func TestGate_OtherEventKind_KeepsGateClosed(t *testing.T) {
	src := &fakeSource{}
	h := New(testConfig, src, &countingNext{})
	require.NoError(t, h.Init())

	src.fire(mgmt.DeploymentName(testDeployment), mgmt.KindDeploymentUndeployed)
	src.fire(mgmt.DeploymentName(testDeployment), "deployment-deploying")

	require.Equal(t, http.StatusServiceUnavailable, serve(h, "/health/live").Code)
}

func TestGate_ReadyNeverReverts(t *testing.T) {
	src := &fakeSource{}
	next := &countingNext{}
	h := New(testConfig, src, next)
	require.NoError(t, h.Init())

	src.fire(mgmt.DeploymentName(testDeployment), mgmt.KindDeploymentDeployed)
	src.fire(mgmt.DeploymentName(testDeployment), mgmt.KindDeploymentUndeployed)
	src.fire(mgmt.DeploymentName(testDeployment), mgmt.KindDeploymentDeployed)

	for _, p := range []string{"/health/live", "/health", "/other", "/"} {
		require.Equal(t, http.StatusOK, serve(h, p).Code, "path %s", p)
	}
	require.Equal(t, int32(4), next.n.Load())
}

func TestGate_SubscribesToDeploymentObjectName(t *testing.T) {
	src := &fakeSource{}
	h := New(testConfig, src, &countingNext{})

	require.NoError(t, h.Init())
	require.Equal(t, []string{"jboss.as:deployment=shop.war"}, src.names)
	require.Equal(t, "jboss.as:deployment=shop.war", h.ObjectName())
}

func TestGate_ConcurrentFirstRequests_InitializeOnce(t *testing.T) {
	src := &fakeSource{delay: 20 * time.Millisecond}
	next := &countingNext{}
	h := New(testConfig, src, next)

	const n = 50
	start := make(chan struct{})
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			path := "/health/live"
			if i%2 == 0 {
				path = "/other"
			}
			codes[i] = serve(h, path).Code
		}(i)
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, src.callCount())
	for i, code := range codes {
		if i%2 == 0 {
			require.Equal(t, http.StatusOK, code)
		} else {
			require.Equal(t, http.StatusServiceUnavailable, code)
		}
	}
	require.Equal(t, int32(n/2), next.n.Load())
}

func TestGate_EventsRacingRequests(t *testing.T) {
	src := &fakeSource{}
	h := New(testConfig, src, &countingNext{})
	require.NoError(t, h.Init())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			code := serve(h, "/health/live").Code
			assert.Contains(t, []int{http.StatusOK, http.StatusServiceUnavailable}, code)
		}()
		go func() {
			defer wg.Done()
			src.fire(mgmt.DeploymentName(testDeployment), mgmt.KindDeploymentDeployed)
		}()
	}
	wg.Wait()

	require.True(t, h.Ready())
	require.Equal(t, http.StatusOK, serve(h, "/health/live").Code)
}

func TestGate_InvalidPattern_IsConfigurationFault(t *testing.T) {
	src := &fakeSource{}
	next := &countingNext{}
	h := New(Config{PathPattern: "/health([", DeploymentName: testDeployment}, src, next)

	err := h.Init()
	require.ErrorIs(t, err, ErrConfiguration)

	rr := serve(h, "/health/live")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Empty(t, rr.Body.String())
	require.Equal(t, int32(0), next.n.Load())
	require.Equal(t, 0, src.callCount())
	require.False(t, h.Ready())
}

func TestGate_EmptyConfig_IsConfigurationFault(t *testing.T) {
	for _, cfg := range []Config{
		{PathPattern: "", DeploymentName: testDeployment},
		{PathPattern: "/health.*", DeploymentName: "  "},
	} {
		h := New(cfg, &fakeSource{}, &countingNext{})
		require.ErrorIs(t, h.Init(), ErrConfiguration)
	}
	require.Empty(t, New(Config{PathPattern: "/health.*", DeploymentName: " "}, nil, &countingNext{}).ObjectName())
}

func TestGate_ObjectNameDoesNotSubscribe(t *testing.T) {
	src := &fakeSource{}
	h := New(testConfig, src, &countingNext{})

	require.Equal(t, "jboss.as:deployment=shop.war", h.ObjectName())
	require.Equal(t, 0, src.callCount())
}

func TestGate_WithStateAndRejectStatus(t *testing.T) {
	shared := readiness.New()
	h := New(testConfig, &fakeSource{}, &countingNext{}, WithState(shared), WithRejectStatus(http.StatusTooManyRequests))

	require.Same(t, shared, h.State())
	require.Equal(t, http.StatusTooManyRequests, serve(h, "/health/live").Code)

	shared.MarkReady()
	require.Equal(t, http.StatusOK, serve(h, "/health/live").Code)
}

func TestGate_WithRealRegistry(t *testing.T) {
	reg := mgmt.NewRegistry()
	defer reg.Close()
	name := mgmt.DeploymentName(testDeployment)
	require.NoError(t, reg.RegisterResource(name))

	h := New(testConfig, reg, &countingNext{})
	require.Equal(t, http.StatusServiceUnavailable, serve(h, "/health/live").Code)

	_, err := reg.Emit(name, mgmt.KindDeploymentDeployed)
	require.NoError(t, err)

	require.Eventually(t, h.Ready, time.Second, 5*time.Millisecond)
	require.Equal(t, http.StatusOK, serve(h, "/health/live").Code)
}

func TestGate_WithRealRegistry_MissingDeploymentFailsOpen(t *testing.T) {
	reg := mgmt.NewRegistry()
	defer reg.Close()

	h := New(testConfig, reg, &countingNext{})

	require.Equal(t, http.StatusOK, serve(h, "/health/live").Code)
}

func TestSubscribe_Outcomes(t *testing.T) {
	l := NewListener(mgmt.DeploymentName(testDeployment), readiness.New())

	require.True(t, Subscribe(&fakeSource{}, mgmt.DeploymentName(testDeployment), l))
	require.False(t, Subscribe(nil, mgmt.DeploymentName(testDeployment), l))
	require.False(t, Subscribe(&fakeSource{err: mgmt.ErrMalformedName}, "bad", l))
	require.False(t, Subscribe(&fakeSource{err: mgmt.ErrInstanceNotFound}, mgmt.DeploymentName(testDeployment), l))
	require.False(t, Subscribe(&fakeSource{err: errors.New("security exception")}, mgmt.DeploymentName(testDeployment), l))
	require.False(t, Subscribe(panickySource{}, mgmt.DeploymentName(testDeployment), l))
}

func TestListener_FiltersAndIsIdempotent(t *testing.T) {
	state := readiness.New()
	l := NewListener(mgmt.DeploymentName(testDeployment), state)

	l.HandleEvent(mgmt.Event{Source: "jboss.as:deployment=shop", Kind: mgmt.KindDeploymentDeployed})
	require.False(t, state.Ready())

	l.HandleEvent(mgmt.Event{Source: mgmt.DeploymentName(testDeployment), Kind: "DEPLOYMENT-DEPLOYED"})
	require.False(t, state.Ready())

	for i := 0; i < 3; i++ {
		l.HandleEvent(mgmt.Event{Source: mgmt.DeploymentName(testDeployment), Kind: mgmt.KindDeploymentDeployed})
		require.True(t, state.Ready())
	}
}

func TestListener_NilStateDoesNotPanic(t *testing.T) {
	l := NewListener(mgmt.DeploymentName(testDeployment), nil)
	require.NotPanics(t, func() {
		l.HandleEvent(mgmt.Event{Source: mgmt.DeploymentName(testDeployment), Kind: mgmt.KindDeploymentDeployed})
	})
}

func TestMatcher_FullMatchSemantics(t *testing.T) {
	m, err := CompileMatcher("/health.*")
	require.NoError(t, err)

	require.True(t, m.Match("/health"))
	require.True(t, m.Match("/health/live"))
	require.False(t, m.Match("/api/health"))
	require.False(t, m.Match("/other"))
	require.Equal(t, "/health.*", m.String())

	alt, err := CompileMatcher("/a|/b")
	require.NoError(t, err)
	require.True(t, alt.Match("/b"))
	require.False(t, alt.Match("/ab"))
	require.False(t, alt.Match("/a/b"))
}

func TestMatcher_InvalidPattern(t *testing.T) {
	_, err := CompileMatcher("(")
	require.ErrorIs(t, err, ErrConfiguration)
}
