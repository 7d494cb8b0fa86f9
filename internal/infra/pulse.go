package infra

import (
	"strings"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
	"go.uber.org/zap"

	"github.com/eliteGoblin/cdsp-autoswitch/internal/domain"
)

const pulseBinaryProperty = "application.process.binary"

// PulseProbe reports media activity from PulseAudio (or pipewire-pulse)
// sink inputs. A playing, uncorked stream counts as activity; when names
// is non-empty only streams from those binaries count.
type PulseProbe struct {
	mu     sync.Mutex
	names  map[string]struct{}
	client *pulse.Client
	logger *zap.Logger
}

// NewPulseProbe creates a probe. The server connection is opened lazily.
func NewPulseProbe(names []string, logger *zap.Logger) *PulseProbe {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return &PulseProbe{names: set, logger: logger}
}

// MediaActive implements domain.ActivityProbe. Connection or protocol
// failures read as inactive and drop the connection for the next call.
func (p *PulseProbe) MediaActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		client, err := pulse.NewClient(pulse.ClientApplicationName("cdsp-autoswitch"))
		if err != nil {
			p.logger.Debug("pulse server unavailable", zap.Error(err))
			return false
		}
		p.client = client
	}

	var inputs pulseproto.GetSinkInputInfoListReply
	if err := p.client.RawRequest(&pulseproto.GetSinkInputInfoList{}, &inputs); err != nil {
		p.logger.Debug("list sink inputs failed", zap.Error(err))
		p.client.Close()
		p.client = nil
		return false
	}
	return anyPlaying(inputs, p.names)
}

// Close releases the server connection.
func (p *PulseProbe) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
}

// anyPlaying reports whether an uncorked input matches names.
func anyPlaying(inputs pulseproto.GetSinkInputInfoListReply, names map[string]struct{}) bool {
	for _, in := range inputs {
		if in == nil || in.Corked {
			continue
		}
		if len(names) == 0 {
			return true
		}
		if _, ok := names[sinkInputBinary(in)]; ok {
			return true
		}
	}
	return false
}

func sinkInputBinary(in *pulseproto.GetSinkInputInfoReply) string {
	entry, ok := in.Properties[pulseBinaryProperty]
	if !ok {
		return ""
	}
	// Property values are NUL-terminated on the wire.
	return strings.TrimRight(string(entry), "\x00")
}

var _ domain.ActivityProbe = (*PulseProbe)(nil)
