package fixtures

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
)

// FakeCamilla is a websocket server answering SetConfigFilePath and
// Reload the way CamillaDSP does.
type FakeCamilla struct {
	mu     sync.Mutex
	srv    *httptest.Server
	loaded []string
	reject bool
}

// StartFakeCamilla starts a server on a random local port.
func StartFakeCamilla() *FakeCamilla {
	f := &FakeCamilla{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// HostPort returns the listening address.
func (f *FakeCamilla) HostPort() (string, int) {
	host, port, _ := net.SplitHostPort(f.srv.Listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return host, p
}

// Reject makes every following command fail.
func (f *FakeCamilla) Reject(reject bool) {
	f.mu.Lock()
	f.reject = reject
	f.mu.Unlock()
}

// Loaded returns config paths in the order they were reloaded.
func (f *FakeCamilla) Loaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.loaded...)
}

// Close stops the server.
func (f *FakeCamilla) Close() {
	f.srv.Close()
}

func (f *FakeCamilla) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var pending string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			var obj map[string]string
			if err := json.Unmarshal(data, &obj); err != nil {
				return
			}
			for k, v := range obj {
				name = k
				if k == "SetConfigFilePath" {
					pending = v
				}
			}
		}

		f.mu.Lock()
		result := "Ok"
		if f.reject {
			result = "Error"
		} else if name == "Reload" {
			f.loaded = append(f.loaded, pending)
		}
		f.mu.Unlock()

		if err := conn.WriteJSON(map[string]any{name: map[string]any{"result": result, "value": nil}}); err != nil {
			return
		}
	}
}
