package ethbind

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

const jsonRpcVersion = "2.0"

/*
Common interface implemented by RPC transports. Obtained via "Dial" and wrapped
into "RpcClient".
*/
type Trans interface {
	/**
	Should make an RPC request and decode the response body into `out`, which
	must be a pointer. Returns a request error or a decoding error.
	*/
	Call(ctx context.Context, out interface{}, method string, params ...interface{}) error

	/**
	Should return a channel that becomes closed when the transport is connected.
	Stateless transports such as HTTP should always return a closed channel.
	Persistent transports such as websocket: when connected, should return a
	closed channel; when not connected, should return an open channel and close
	it when connected.
	*/
	Connected() <-chan struct{}
}

/*
Chooses the appropriate transport for the given URL. Waits until connected, if
possible. The logger is used for background logging by persistent transports;
nil means no logging.
*/
func Dial(rpcPath string, logger hclog.Logger) (Trans, error) {
	rpcUrl, err := url.Parse(rpcPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if rpcUrl.Scheme == "ws" || rpcUrl.Scheme == "wss" {
		return DialWs(*rpcUrl, logger)
	}

	if rpcUrl.Scheme == "http" || rpcUrl.Scheme == "https" {
		return HttpTrans{Url: *rpcUrl}, nil
	}

	return nil, errors.Errorf("unsupported RPC path: %v", rpcPath)
}

/*
Stateless HTTP transport. Uses "http.DefaultClient" unless "Client" is set.
*/
type HttpTrans struct {
	Url    url.URL
	Client *http.Client
}

// Since an HTTP transport is "always connected", this returns a channel that's
// always closed.
func (self HttpTrans) Connected() <-chan struct{} { return alwaysConnected }

var alwaysConnected = func() chan struct{} {
	out := make(chan struct{})
	close(out)
	return out
}()

// Makes an RPC call.
func (self HttpTrans) Call(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	var body bytes.Buffer
	err := json.NewEncoder(&body).Encode(newRpcRequest(randomId(), method, params))
	if err != nil {
		return errors.WithStack(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, self.Url.String(), &body)
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := self.Client
	if client == nil {
		client = http.DefaultClient
	}

	res, err := client.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		bytes, _ := io.ReadAll(res.Body)
		return errors.Errorf("RPC error: %s\n%s", res.Status, bytes)
	}

	rpcRes := rpcResponse{Result: out}
	err = json.NewDecoder(res.Body).Decode(&rpcRes)
	if err != nil {
		return errors.Wrap(err, "failed to decode RPC response")
	}
	// Note: `error((*RpcError)(nil)) != nil` !!!
	if rpcRes.Error != nil {
		return errors.WithStack(*rpcRes.Error)
	}
	return nil
}

/*
Stateful websocket transport. Supports concurrent RPC calls and automatic
reconnect. The ".ReconnectInterval" property defaults to 1s, can be modified
before the first disconnect. Calls in flight during a disconnect fail; new
calls wait until reconnected or until their context is done.
*/
type WsTrans struct {
	Url               url.URL
	Logger            hclog.Logger
	ReconnectInterval time.Duration

	stateLock sync.Mutex
	conn      *websocket.Conn
	connected chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Unavoidable bottleneck
	writeLock sync.Mutex

	pendingLock sync.Mutex
	pending     map[string]chan either
}

/*
Attempts to establish a websocket connection to the RPC node at the given URL.
Waits until the connection is established, then starts a background loop that
reads responses and reconnects when needed. Call "Close" to stop it.
*/
func DialWs(url url.URL, logger hclog.Logger) (*WsTrans, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	transport := &WsTrans{
		Url:               url,
		Logger:            logger.Named("ws"),
		ReconnectInterval: defaultReconnectInterval,
		connected:         make(chan struct{}),
		done:              make(chan struct{}),
		pending:           map[string]chan either{},
	}

	err := transport.connect()
	if err != nil {
		return nil, err
	}

	go transport.run()
	return transport, nil
}

func (self *WsTrans) run() {
	for {
		err := self.receiveLoop()

		select {
		case <-self.done:
			return
		default:
		}
		self.Logger.Warn("disconnected", "url", self.Url.String(), "error", err)

		for {
			self.Logger.Debug("waiting before reconnecting", "url", self.Url.String())

			select {
			case <-self.done:
				return
			case <-time.After(self.ReconnectInterval):
			}

			err := self.connect()
			if err == nil {
				self.Logger.Info("reconnected", "url", self.Url.String())
				break
			}

			self.Logger.Warn("failed to connect", "url", self.Url.String(), "error", err)
		}
	}
}

func (self *WsTrans) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(self.Url.String(), nil)
	if err != nil {
		return errors.WithStack(err)
	}

	self.stateLock.Lock()
	self.conn = conn
	close(self.connected)
	self.stateLock.Unlock()

	return nil
}

func (self *WsTrans) receiveLoop() error {
	self.stateLock.Lock()
	conn := self.conn
	self.stateLock.Unlock()

	defer func() {
		self.stateLock.Lock()
		self.connected = make(chan struct{})
		self.conn = nil
		self.stateLock.Unlock()

		conn.Close()
		self.failPending(errors.New("disconnected from RPC server"))
	}()

	/**
	Note: we receive and unmarshal separately. A receiving failure indicates
	a disconnect. An unmarshaling error indicates a malformed message, but
	not necessarily a connection problem.
	*/
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var head struct{ Id string }
		err = json.Unmarshal(payload, &head)
		if err != nil || head.Id == "" {
			self.Logger.Warn("ignoring RPC message without ID", "url", self.Url.String(), "error", err)
			continue
		}

		var body json.RawMessage
		res := rpcResponse{Result: &body}
		err = json.Unmarshal(payload, &res)
		if err != nil {
			self.Logger.Warn("failed to decode RPC response", "url", self.Url.String(), "error", err)
			continue
		}

		// Note: `error((*RpcError)(nil)) != nil` !!!
		if res.Error != nil {
			err = errors.WithStack(*res.Error)
		}

		self.dispatch(head.Id, []byte(body), err)
	}
}

/*
Returns a channel that becomes closed when the transport is connected. If the
transport is currently connected, the channel is closed.
*/
func (self *WsTrans) Connected() <-chan struct{} {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.connected
}

// Makes an RPC call. Waits for a connection first.
func (self *WsTrans) Call(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	err := ctx.Err()
	if err != nil {
		return err
	}
	select {
	case <-self.done:
		return errors.New("websocket transport is closed")
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-self.done:
		return errors.New("websocket transport is closed")
	case <-self.Connected():
	}

	id := randomId()
	res := make(chan either, 1)
	self.registerPending(id, res)
	defer self.unregisterPending(id)

	err = self.send(newRpcRequest(id, method, params))
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case either := <-res:
		if either.err != nil {
			return either.err
		}
		if len(either.val) == 0 {
			return nil
		}
		err := json.Unmarshal(either.val, out)
		return errors.WithStack(err)
	}
}

/*
Stops the background loop and closes the connection. Pending calls fail.
Idempotent.
*/
func (self *WsTrans) Close() error {
	var err error
	self.closeOnce.Do(func() {
		close(self.done)

		self.stateLock.Lock()
		conn := self.conn
		self.stateLock.Unlock()

		if conn != nil {
			err = errors.WithStack(conn.Close())
		}
	})
	return err
}

func (self *WsTrans) send(req rpcRequest) error {
	self.stateLock.Lock()
	conn := self.conn
	self.stateLock.Unlock()

	if conn == nil {
		return errors.New("not connected to RPC server")
	}

	self.writeLock.Lock()
	defer self.writeLock.Unlock()
	return errors.WithStack(conn.WriteJSON(req))
}

func (self *WsTrans) registerPending(id string, res chan either) {
	self.pendingLock.Lock()
	self.pending[id] = res
	self.pendingLock.Unlock()
}

func (self *WsTrans) unregisterPending(id string) {
	self.pendingLock.Lock()
	delete(self.pending, id)
	self.pendingLock.Unlock()
}

func (self *WsTrans) dispatch(id string, val []byte, err error) {
	self.pendingLock.Lock()
	res := self.pending[id]
	self.pendingLock.Unlock()

	if res != nil {
		select {
		case res <- either{val: val, err: err}:
		default:
		}
	}
}

func (self *WsTrans) failPending(err error) {
	self.pendingLock.Lock()
	defer self.pendingLock.Unlock()

	for _, res := range self.pending {
		select {
		case res <- either{err: err}:
		default:
		}
	}
}

func newRpcRequest(id string, method string, params []interface{}) rpcRequest {
	if params == nil {
		params = []interface{}{}
	}
	return rpcRequest{
		Jsonrpc: jsonRpcVersion,
		Id:      id,
		Method:  method,
		Params:  params,
	}
}

var (
	rnd     = rand.New(rand.NewSource(time.Now().UnixNano()))
	rndLock sync.Mutex
)

// Tens of times faster than "crypto/rand". Ids only need to be unique among
// the calls in flight.
func randomId() string {
	var buf [16]byte
	rndLock.Lock()
	rnd.Read(buf[:])
	rndLock.Unlock()
	return bytesToMutableString(HexEncode(buf[:]))
}
