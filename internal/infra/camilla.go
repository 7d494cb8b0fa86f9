package infra

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
)

// Engine names accepted by SelectApplier.
const (
	EngineCamillaDSP = "camilladsp"
	EngineNone       = "none"
)

var (
	// ErrEngineRejected is returned when CamillaDSP answers a command with a non-Ok result.
	ErrEngineRejected = errors.New("camilladsp rejected command")
	// ErrEngineProtocol is returned for replies that do not match the command sent.
	ErrEngineProtocol = errors.New("unexpected camilladsp reply")
	// ErrUnknownEngine is returned by SelectApplier for an unsupported engine name.
	ErrUnknownEngine = errors.New("unknown engine")
)

// CamillaConfig locates the CamillaDSP websocket server.
type CamillaConfig struct {
	Host    string
	Port    int
	Timeout time.Duration // bounds dial plus both commands
}

// DefaultCamillaConfig returns the engine's stock listen address.
func DefaultCamillaConfig() CamillaConfig {
	return CamillaConfig{
		Host:    "127.0.0.1",
		Port:    1234,
		Timeout: 5 * time.Second,
	}
}

// CamillaApplier applies a config file over the CamillaDSP websocket API:
// SetConfigFilePath followed by Reload.
type CamillaApplier struct {
	cfg    CamillaConfig
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewCamillaApplier creates an applier for cfg.
func NewCamillaApplier(cfg CamillaConfig, logger *zap.Logger) *CamillaApplier {
	return &CamillaApplier{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// URL returns the websocket endpoint.
func (a *CamillaApplier) URL() string {
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port))}
	return u.String()
}

// Name implements domain.Applier.
func (a *CamillaApplier) Name() string {
	return EngineCamillaDSP
}

// Apply implements domain.Applier.
func (a *CamillaApplier) Apply(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	conn, _, err := a.dialer.DialContext(ctx, a.URL(), nil)
	if err != nil {
		return fmt.Errorf("connect to camilladsp at %s: %w", a.URL(), err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	if err := command(conn, "SetConfigFilePath", path); err != nil {
		return err
	}
	if err := command(conn, "Reload", nil); err != nil {
		return err
	}

	a.logger.Debug("camilladsp reloaded", zap.String("path", path), zap.String("url", a.URL()))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

type camillaReply struct {
	Result string `json:"result"`
}

// command sends one request and checks its reply. Commands without an
// argument are sent as a bare JSON string.
func command(conn *websocket.Conn, name string, arg any) error {
	var msg any = name
	if arg != nil {
		msg = map[string]any{name: arg}
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}

	var reply map[string]camillaReply
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("read %s reply: %w", name, err)
	}
	r, ok := reply[name]
	if !ok {
		return fmt.Errorf("%w: no %s in reply", ErrEngineProtocol, name)
	}
	if r.Result != "Ok" {
		return fmt.Errorf("%w: %s returned %q", ErrEngineRejected, name, r.Result)
	}
	return nil
}

// NopApplier accepts every path without touching an engine.
type NopApplier struct {
	logger *zap.Logger
}

// NewNopApplier creates a dry applier.
func NewNopApplier(logger *zap.Logger) *NopApplier {
	return &NopApplier{logger: logger}
}

// Apply implements domain.Applier.
func (a *NopApplier) Apply(_ context.Context, path string) error {
	a.logger.Debug("engine disabled, not applying", zap.String("path", path))
	return nil
}

// Name implements domain.Applier.
func (a *NopApplier) Name() string {
	return EngineNone
}

// SelectApplier returns the applier for engine.
func SelectApplier(engine string, cfg CamillaConfig, logger *zap.Logger) (domain.Applier, error) {
	switch engine {
	case EngineCamillaDSP, "":
		return NewCamillaApplier(cfg, logger), nil
	case EngineNone:
		return NewNopApplier(logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}

var _ domain.Applier = (*CamillaApplier)(nil)
var _ domain.Applier = (*NopApplier)(nil)
