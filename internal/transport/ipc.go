package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
)

// IPC relays requests to the desktop host over a unix domain socket
// speaking newline-delimited relay envelopes, one exchange per
// connection.
type IPC struct {
	socketPath string
	dial       func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewIPC(socketPath string) *IPC {
	dialer := &net.Dialer{}
	return &IPC{socketPath: socketPath, dial: dialer.DialContext}
}

// SetDialFunc overrides how the socket connection is established.
// Passing nil restores the default dialer.
func (p *IPC) SetDialFunc(dial func(ctx context.Context, network, addr string) (net.Conn, error)) {
	if dial == nil {
		dialer := &net.Dialer{}
		dial = dialer.DialContext
	}
	p.dial = dial
}

func (p *IPC) Kind() Kind { return KindIPC }

// SocketPresent reports whether the socket file exists without dialing.
func (p *IPC) SocketPresent() bool {
	if p.socketPath == "" {
		return false
	}
	_, err := os.Stat(p.socketPath)
	return err == nil
}

func (p *IPC) Send(ctx context.Context, req Request) (*Result, error) {
	if p.socketPath == "" {
		return nil, errdef.New(errdef.CodeTransport, "ipc socket not configured")
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	reply, err := p.exchange(ctx, newRelayExecute(req))
	if err != nil {
		return nil, err
	}
	return resultFromRelay(reply, KindIPC)
}

func (p *IPC) CheckHealth(ctx context.Context) bool {
	if !p.SocketPresent() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	reply, err := p.exchange(ctx, newRelayPing())
	if err != nil {
		return false
	}
	return reply.Type == relayTypePong
}

func (p *IPC) exchange(ctx context.Context, env relayRequest) (relayResponse, error) {
	conn, err := p.dial(ctx, "unix", p.socketPath)
	if err != nil {
		return relayResponse{}, errdef.Wrap(errdef.CodeTransport, err, "dial ipc socket")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return relayResponse{}, errdef.Wrap(errdef.CodeTransport, err, "set ipc deadline")
		}
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return relayResponse{}, errdef.Wrap(errdef.CodeTransport, err, "encode relay envelope")
	}
	payload = append(payload, '\n')
	if _, err := conn.Write(payload); err != nil {
		return relayResponse{}, errdef.Wrap(errdef.CodeTransport, err, "send relay envelope")
	}

	reader := bufio.NewReaderSize(conn, 64*1024)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return relayResponse{}, errdef.Wrap(errdef.CodeTransport, err, "read relay reply")
		}
		var reply relayResponse
		if err := json.Unmarshal(line, &reply); err != nil {
			return relayResponse{}, errdef.Wrap(errdef.CodeTransport, err, "decode relay reply")
		}
		if reply.ID != env.ID {
			continue
		}
		return reply, nil
	}
}
