package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
)

const (
	// Relayed bodies can be large; the default nhooyr read limit of
	// 32 KiB would truncate most real responses.
	maxRelayMessageBytes = 64 << 20

	healthProbeTimeout = 2 * time.Second
)

// Bridge relays requests through a browser-extension helper over a
// local websocket. The helper performs the fetch inside the browser
// and streams the outcome back as a relay envelope.
type Bridge struct {
	url  string
	dial func(context.Context, string, *websocket.DialOptions) (*websocket.Conn, *http.Response, error)
}

func NewBridge(url string) *Bridge {
	return &Bridge{url: url, dial: websocket.Dial}
}

// SetDialFunc overrides the websocket dialer. Passing nil restores the default.
func (b *Bridge) SetDialFunc(dial func(context.Context, string, *websocket.DialOptions) (*websocket.Conn, *http.Response, error)) {
	if dial == nil {
		dial = websocket.Dial
	}
	b.dial = dial
}

func (b *Bridge) Kind() Kind { return KindBridge }

func (b *Bridge) Send(ctx context.Context, req Request) (*Result, error) {
	if b.url == "" {
		return nil, errdef.New(errdef.CodeTransport, "bridge url not configured")
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	conn, _, err := b.dial(ctx, b.url, nil)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeTransport, err, "dial extension bridge")
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(maxRelayMessageBytes)

	env := newRelayExecute(req)
	reply, err := roundTripBridge(ctx, conn, env)
	if err != nil {
		return nil, err
	}
	return resultFromRelay(reply, KindBridge)
}

func (b *Bridge) CheckHealth(ctx context.Context) bool {
	if b.url == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	conn, _, err := b.dial(ctx, b.url, nil)
	if err != nil {
		return false
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(maxRelayMessageBytes)

	reply, err := roundTripBridge(ctx, conn, newRelayPing())
	if err != nil {
		return false
	}
	return reply.Type == relayTypePong
}

// roundTripBridge writes one envelope and reads frames until the reply
// carrying the same id shows up. Unrelated frames are skipped so the
// helper may interleave notifications on the same connection.
func roundTripBridge(ctx context.Context, conn *websocket.Conn, env relayRequest) (relayResponse, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return relayResponse{}, errdef.Wrap(errdef.CodeTransport, err, "encode relay envelope")
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return relayResponse{}, errdef.Wrap(errdef.CodeTransport, err, "send relay envelope")
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return relayResponse{}, errdef.Wrap(errdef.CodeTransport, err, "read relay reply")
		}
		var reply relayResponse
		if err := json.Unmarshal(data, &reply); err != nil {
			return relayResponse{}, errdef.Wrap(errdef.CodeTransport, err, "decode relay reply")
		}
		if reply.ID != env.ID {
			continue
		}
		return reply, nil
	}
}
