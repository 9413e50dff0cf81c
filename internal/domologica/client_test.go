package domologica

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daemonp/domologica2mqtt/internal/log"
	"github.com/daemonp/domologica2mqtt/internal/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg ClientConfig) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.BaseURL = srv.URL + "/"
	return NewClient(cfg, log.Nop())
}

func TestNewClient_TrimsBaseURL(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://192.168.5.2/"}, log.Nop())
	assert.Equal(t, "http://192.168.5.2", client.BaseURL())
}

func TestFetchStatuses_BasicAuth(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		gotPath = r.URL.Path
		io.WriteString(w, twoElementsXML)
	}, ClientConfig{Username: "admin", Password: "secret"})

	raw, err := client.FetchStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/api/element_xml_statuses.xml", gotPath)
	assert.Equal(t, twoElementsXML, string(raw))
}

func TestFetchStatuses_NoAuthWhenUnconfigured(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _, ok := r.BasicAuth()
		assert.False(t, ok)
		io.WriteString(w, twoElementsXML)
	}, ClientConfig{})

	_, err := client.FetchStatuses(context.Background())
	require.NoError(t, err)
}

func TestFetchStatuses_HTTPStatusIsConnectivityError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, ClientConfig{})

	_, err := client.FetchStatuses(context.Background())
	var cerr *ConnectivityError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, http.StatusUnauthorized, cerr.StatusCode)
}

func TestFetchStatuses_Timeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, ClientConfig{Timeout: 50 * time.Millisecond})
	defer close(release)

	_, err := client.FetchStatuses(context.Background())
	var cerr *ConnectivityError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Zero(t, cerr.StatusCode)
}

func TestFetchElementMetadata_Path(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/elements/48.xml", r.URL.Path)
		io.WriteString(w, "<element><name>Luce</name></element>")
	}, ClientConfig{})

	raw, err := client.FetchElementMetadata(context.Background(), "48")
	require.NoError(t, err)
	meta, err := ParseMetadata("48", raw)
	require.NoError(t, err)
	assert.Equal(t, "Luce", meta.Name)
}

func TestFetchElementMetadata_ConcurrencyCap(t *testing.T) {
	var inFlight, peak int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		io.WriteString(w, "<element/>")
	}, ClientConfig{MetadataConcurrency: 2})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.FetchElementMetadata(context.Background(), "1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestSendCommand_SimpleActionIsGET(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/elements/10.xml", r.URL.Path)
		assert.Equal(t, "switchon", r.URL.Query().Get("action"))
		io.WriteString(w, "<ok/>")
	}, ClientConfig{})

	require.NoError(t, client.SendCommand(context.Background(), SwitchOn("10")))
}

func TestSendCommand_DimmerIsFormPOST(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "setdimmer", r.URL.Query().Get("action"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "60", r.PostForm.Get("arguments[0][value]"))
		assert.Equal(t, "int", r.PostForm.Get("arguments[0][type]"))
		io.WriteString(w, "<ok/>")
	}, ClientConfig{})

	require.NoError(t, client.SendCommand(context.Background(), SetDimmer("48", 60)))
}

func TestSendCommand_FailureIsCommandError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, ClientConfig{})

	err := client.SendCommand(context.Background(), SwitchOff("10"))
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, ActionSwitchOff, cmdErr.Action)

	var cerr *ConnectivityError
	assert.True(t, errors.As(err, &cerr))
}

func TestCommandConstructors(t *testing.T) {
	assert.Equal(t, "100", SetDimmer("1", 140).Args[0].Value)
	assert.Equal(t, "0", SetDimmer("1", -3).Args[0].Value)
	assert.Equal(t, ActionTurnUp, Open("1").Action)
	assert.Equal(t, ActionTurnDown, Close("1").Action)

	thermostat := SetTemperature("3", types.ElementSnapshot{StatusThermostatTemperature: types.Text("20")}, 21.5)
	assert.Equal(t, ActionSetTMode, thermostat.Action)
	assert.Equal(t, Argument{Value: "21.5", Type: "float"}, thermostat.Args[0])

	ac := SetTemperature("4", types.ElementSnapshot{StatusACRoomTemperature: types.Text("24")}, 22)
	assert.Equal(t, ActionSetTemperatureDesired, ac.Action)
	assert.Equal(t, "22", ac.Args[0].Value)
}
