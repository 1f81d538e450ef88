package events

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InfraSecConsult/upnp-control-go/lib/model"
)

const volumeEvent = `<e:propertyset xmlns:e="urn:schemas-upnp-org:event-1-0"><e:property><Volume>10</Volume></e:property></e:propertyset>`

func fixedAddress() (net.IP, error) {
	return net.ParseIP("192.168.1.20").To4(), nil
}

type collector struct {
	mu  sync.Mutex
	got []model.Notification
}

func (c *collector) Notify(n model.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, n)
}

func (c *collector) all() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Notification(nil), c.got...)
}

func newTestListener(t *testing.T, opts ...Option) (*Listener, string) {
	t.Helper()
	opts = append([]Option{WithBindAddress("127.0.0.1"), WithAddressProvider(fixedAddress)}, opts...)
	l := NewListener(opts...)

	callbackURL, err := l.Listen()
	require.NoError(t, err)
	t.Cleanup(func() {
		if l.Listening() {
			_ = l.Shutdown(context.Background())
		}
	})

	u, err := url.Parse(callbackURL)
	require.NoError(t, err)
	return l, "http://127.0.0.1:" + u.Port() + "/"
}

func send(t *testing.T, method, target, body string, header map[string]string) int {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

// TestListener_Lifecycle tests the stopped and listening states
func TestListener_Lifecycle(t *testing.T) {
	l := NewListener(WithBindAddress("127.0.0.1"), WithAddressProvider(fixedAddress))

	var ise *model.IllegalStateError
	_, err := l.URL()
	require.ErrorAs(t, err, &ise)
	assert.True(t, errors.Is(err, model.ErrNotStarted))

	err = l.Shutdown(context.Background())
	require.ErrorAs(t, err, &ise)

	first, err := l.Listen()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "http://192.168.1.20:"))
	assert.True(t, strings.HasSuffix(first, "/"))

	second, err := l.Listen()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	current, err := l.URL()
	require.NoError(t, err)
	assert.Equal(t, first, current)

	require.NoError(t, l.Shutdown(context.Background()))
	assert.False(t, l.Listening())
	_, err = l.URL()
	assert.ErrorAs(t, err, &ise)
	assert.ErrorAs(t, l.Shutdown(context.Background()), &ise)

	again, err := l.Listen()
	require.NoError(t, err)
	assert.NotEmpty(t, again)
	require.NoError(t, l.Shutdown(context.Background()))
}

// TestListener_Listen_FixedPort tests that a second listener cannot share a port
func TestListener_Listen_FixedPort(t *testing.T) {
	_, target := newTestListener(t)
	u, err := url.Parse(target)
	require.NoError(t, err)

	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	other := NewListener(WithBindAddress("127.0.0.1"), WithListenPort(port), WithAddressProvider(fixedAddress))
	_, err = other.Listen()
	assert.Error(t, err)
	assert.False(t, other.Listening())
}

// TestListener_Listen_NoAddress tests that a missing private address is a hard error
func TestListener_Listen_NoAddress(t *testing.T) {
	l := NewListener(WithBindAddress("127.0.0.1"), WithAddressProvider(func() (net.IP, error) {
		return nil, model.ErrNoPrivateAddress
	}))

	_, err := l.Listen()
	assert.True(t, errors.Is(err, model.ErrNoPrivateAddress))
	assert.False(t, l.Listening())
}

// TestListener_Notify tests delivery of a parsed event to the callback
func TestListener_Notify(t *testing.T) {
	c := &collector{}
	_, target := newTestListener(t, WithCallback(c))

	status := send(t, MethodNotify, target, volumeEvent, map[string]string{
		"SID": "uuid:sub-0001",
		"SEQ": "7",
		"NT":  "upnp:event",
		"NTS": "upnp:propchange",
	})
	assert.Equal(t, http.StatusOK, status)

	got := c.all()
	require.Len(t, got, 1)
	assert.Equal(t, model.PropertyChange{"Volume": "10"}, got[0].Properties)
	assert.Equal(t, "uuid:sub-0001", got[0].SID)
	assert.Equal(t, uint32(7), got[0].Seq)
	assert.Equal(t, "upnp:event", got[0].NT)
	assert.Equal(t, "upnp:propchange", got[0].NTS)
	assert.Equal(t, volumeEvent, string(got[0].Body))
	assert.NotEmpty(t, got[0].RemoteAddr)
	assert.WithinDuration(t, time.Now(), got[0].ReceivedAt, time.Minute)
}

// TestListener_Notify_Passthrough tests the raw body parser
func TestListener_Notify_Passthrough(t *testing.T) {
	c := &collector{}
	_, target := newTestListener(t, WithCallback(c), WithParser(PassthroughParser))

	assert.Equal(t, http.StatusOK, send(t, MethodNotify, target, "opaque", nil))

	got := c.all()
	require.Len(t, got, 1)
	assert.Equal(t, "opaque", string(got[0].Body))
	assert.Nil(t, got[0].Properties)
}

// TestListener_Notify_Rejections tests wrong methods and unparseable bodies
func TestListener_Notify_Rejections(t *testing.T) {
	c := &collector{}
	_, target := newTestListener(t, WithCallback(c))

	assert.Equal(t, http.StatusMethodNotAllowed, send(t, http.MethodGet, target, "", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, send(t, http.MethodPost, target, volumeEvent, nil))
	assert.Equal(t, http.StatusBadRequest, send(t, MethodNotify, target, "<broken", nil))
	assert.Empty(t, c.all())
}

// TestListener_DefaultRecorder tests the default callback
func TestListener_DefaultRecorder(t *testing.T) {
	l, target := newTestListener(t)
	require.NotNil(t, l.Recorder())

	assert.Equal(t, http.StatusOK, send(t, MethodNotify, target, volumeEvent, map[string]string{"SID": "uuid:s"}))

	last, ok := l.Recorder().Last()
	require.True(t, ok)
	assert.Equal(t, "10", last.Properties["Volume"])

	custom := NewListener(WithCallback(CallbackFunc(func(model.Notification) {})))
	assert.Nil(t, custom.Recorder())
}

// TestListener_Shutdown_Deadline tests the fallback to closing connections
func TestListener_Shutdown_Deadline(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	l, target := newTestListener(t, WithCallback(CallbackFunc(func(model.Notification) {
		once.Do(func() { close(entered) })
		<-release
	})))
	defer close(release)

	go func() {
		req, err := http.NewRequest(MethodNotify, target, strings.NewReader(volumeEvent))
		if err != nil {
			return
		}
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close()
		}
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, l.Shutdown(ctx))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, l.Listening())
}

// TestListener_Shutdown_BlockedCallback tests that a shutdown without a
// deadline is bounded and does not block the state accessors
func TestListener_Shutdown_BlockedCallback(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	l, target := newTestListener(t, WithCallback(CallbackFunc(func(model.Notification) {
		once.Do(func() { close(entered) })
		<-release
	})))
	defer close(release)

	go func() {
		req, err := http.NewRequest(MethodNotify, target, strings.NewReader(volumeEvent))
		if err != nil {
			return
		}
		if resp, err := http.DefaultClient.Do(req); err == nil {
			resp.Body.Close()
		}
	}()
	<-entered

	stopped := make(chan error, 1)
	start := time.Now()
	go func() { stopped <- l.Shutdown(context.Background()) }()

	require.Eventually(t, func() bool { return !l.Listening() }, time.Second, 10*time.Millisecond)
	var ise *model.IllegalStateError
	_, err := l.URL()
	assert.ErrorAs(t, err, &ise)

	select {
	case err := <-stopped:
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), ShutdownGrace)
	case <-time.After(ShutdownGrace + 3*time.Second):
		t.Fatal("Shutdown did not return after the grace period")
	}
}

// TestListener_Notify_EmptyBody tests that an empty NOTIFY still reaches the callback
func TestListener_Notify_EmptyBody(t *testing.T) {
	c := &collector{}
	_, target := newTestListener(t, WithCallback(c))

	assert.Equal(t, http.StatusOK, send(t, MethodNotify, target, "", map[string]string{"SID": "uuid:s", "SEQ": "3"}))

	got := c.all()
	require.Len(t, got, 1)
	assert.Equal(t, "uuid:s", got[0].SID)
	assert.Equal(t, uint32(3), got[0].Seq)
	assert.Empty(t, got[0].Properties)
}
