package infra

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCamilla speaks just enough of the CamillaDSP websocket API.
type fakeCamilla struct {
	mu       sync.Mutex
	received []string
	results  map[string]string // command -> result, default Ok
}

func (f *fakeCamilla) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(data, &obj); err != nil {
				return
			}
			for k := range obj {
				name = k
			}
		}

		f.mu.Lock()
		f.received = append(f.received, strings.TrimSpace(string(data)))
		result := "Ok"
		if r, ok := f.results[name]; ok {
			result = r
		}
		f.mu.Unlock()

		_ = conn.WriteJSON(map[string]any{name: map[string]any{"result": result, "value": nil}})
	}
}

func startFakeCamilla(t *testing.T, f *fakeCamilla) CamillaConfig {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return CamillaConfig{Host: host, Port: p, Timeout: 2 * time.Second}
}

func TestCamillaApplier_SetsPathThenReloads(t *testing.T) {
	f := &fakeCamilla{}
	a := NewCamillaApplier(startFakeCamilla(t, f), zap.NewNop())

	require.NoError(t, a.Apply(context.Background(), "/etc/cdsp/profiles/cinema.night.yml"))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{
		`{"SetConfigFilePath":"/etc/cdsp/profiles/cinema.night.yml"}`,
		`"Reload"`,
	}, f.received)
}

func TestCamillaApplier_RejectedCommand(t *testing.T) {
	f := &fakeCamilla{results: map[string]string{"Reload": "Error"}}
	a := NewCamillaApplier(startFakeCamilla(t, f), zap.NewNop())

	err := a.Apply(context.Background(), "/x.yml")
	assert.ErrorIs(t, err, ErrEngineRejected)
}

func TestCamillaApplier_Unreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	a := NewCamillaApplier(CamillaConfig{Host: "127.0.0.1", Port: port, Timeout: time.Second}, zap.NewNop())
	assert.Error(t, a.Apply(context.Background(), "/x.yml"))
}

func TestSelectApplier(t *testing.T) {
	a, err := SelectApplier(EngineNone, DefaultCamillaConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, EngineNone, a.Name())
	assert.NoError(t, a.Apply(context.Background(), "/x.yml"))

	a, err = SelectApplier(EngineCamillaDSP, DefaultCamillaConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:1234", a.(*CamillaApplier).URL())

	_, err = SelectApplier("pipewire", DefaultCamillaConfig(), zap.NewNop())
	assert.ErrorIs(t, err, ErrUnknownEngine)
}
