package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/purelabio/ethbind"
	"github.com/stretchr/testify/require"
)

const testAbiJson = `[
	{"type": "constructor", "inputs": [{"name": "supply", "type": "uint256"}]},
	{"type": "function", "name": "balanceOf", "stateMutability": "view",
		"inputs": [{"name": "owner", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]},
	{"type": "function", "name": "transfer",
		"inputs": [{"name": "to", "type": "address"}, {"name": "value", "type": "uint256"}],
		"outputs": [{"name": "", "type": "bool"}]},
	{"type": "event", "name": "Transfer", "inputs": [
		{"name": "from", "type": "address", "indexed": true},
		{"name": "to", "type": "address", "indexed": true},
		{"name": "value", "type": "uint256", "indexed": false}
	]}
]`

var (
	testAbi     = ethbind.MustParseAbiJson(testAbiJson)
	testAddress = ethbind.MustParseAddress("0x00000000000000000000000000000000000000aa")
	testSender  = ethbind.MustParseAddress("0x00000000000000000000000000000000000000bb")
	testHash    = ethbind.MustParseHash("0xabababababababababababababababababababababababababababababababab")
)

// Output shared with a command running in another goroutine.
type syncBuffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (self *syncBuffer) Write(input []byte) (int, error) {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.buf.Write(input)
}

func (self *syncBuffer) String() string {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.buf.String()
}

func execute(t *testing.T, args ...string) (string, error) {
	return executeContext(context.Background(), t, new(syncBuffer), args...)
}

func executeContext(ctx context.Context, t *testing.T, out *syncBuffer, args ...string) (string, error) {
	cmd := newRootCommand(out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func word(num uint64) ethbind.HexBytes {
	var out ethbind.Word
	out[31] = byte(num)
	out[30] = byte(num >> 8)
	return out[:]
}

func transferLog(value uint64) ethbind.LogEntry {
	event, _ := testAbi.Event("Transfer")
	return ethbind.LogEntry{
		Address: testAddress,
		Topics:  []ethbind.Word{event.Selector, testSender.Word(), testAddress.Word()},
		Data:    word(value),
	}
}

type nodeRequest struct {
	Id     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// Scripted JSON-RPC node serving the token above at "testAddress".
func testNode(t *testing.T) (*httptest.Server, func() []nodeRequest) {
	var lock sync.Mutex
	var requests []nodeRequest

	srv := httptest.NewServer(http.HandlerFunc(func(rew http.ResponseWriter, req *http.Request) {
		var body nodeRequest
		err := json.NewDecoder(req.Body).Decode(&body)
		if err != nil {
			http.Error(rew, err.Error(), http.StatusBadRequest)
			return
		}
		lock.Lock()
		requests = append(requests, body)
		lock.Unlock()

		var result interface{}
		switch body.Method {
		case "eth_call":
			result = word(7)
		case "eth_estimateGas":
			result = "0x5208"
		case "eth_sendTransaction":
			result = testHash
		case "eth_getTransactionReceipt":
			result = ethbind.TxReceipt{
				TransactionHash: testHash,
				ContractAddress: testAddress,
				Logs:            []ethbind.LogEntry{transferLog(10)},
			}
		case "eth_getCode":
			result = "0x6080"
		case "eth_newFilter":
			result = "0x1"
		case "eth_getFilterLogs":
			result = []ethbind.LogEntry{transferLog(3)}
		case "eth_getFilterChanges":
			result = []ethbind.LogEntry{}
		case "eth_uninstallFilter":
			result = true
		default:
			http.Error(rew, "unexpected method "+body.Method, http.StatusNotImplemented)
			return
		}

		rew.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rew).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      body.Id,
			"result":  result,
		})
	}))
	t.Cleanup(srv.Close)

	return srv, func() []nodeRequest {
		lock.Lock()
		defer lock.Unlock()
		return append([]nodeRequest(nil), requests...)
	}
}

func testConfig(t *testing.T, rpc string) string {
	abiPath := writeFile(t, "token.abi", testAbiJson)
	codePath := writeFile(t, "token.bin", "0x6060\n")
	return writeFile(t, "eth_bind.yaml", `
rpc: `+rpc+`
from: "0x00000000000000000000000000000000000000bb"
abi: `+abiPath+`
code: `+codePath+`
address: "0x00000000000000000000000000000000000000aa"
receiptInterval: 1ms
subscriptionInterval: 10ms
`)
}

func TestCallCommand(t *testing.T) {
	srv, requests := testNode(t)

	out, err := execute(t, "--config", testConfig(t, srv.URL), "call", "balanceOf", testSender.String())
	require.NoError(t, err)
	require.Equal(t, "7\n", out)

	require.Len(t, requests(), 1)
	var msg ethbind.TxMsg
	require.NoError(t, json.Unmarshal(requests()[0].Params[0], &msg))
	require.Equal(t, testAddress, msg.To)
	require.Equal(t, testSender, msg.From)
	require.Len(t, msg.Data, 4+32)
}

func TestCallCommandErrors(t *testing.T) {
	srv, _ := testNode(t)
	path := testConfig(t, srv.URL)

	_, err := execute(t, "--config", path, "call", "burn")
	require.Error(t, err)
	require.Contains(t, err.Error(), "burn")

	_, err = execute(t, "--config", path, "call", "balanceOf")
	require.Error(t, err)
	require.Contains(t, err.Error(), "balanceOf(address)")

	_, err = execute(t, "--config", path, "send", "balanceOf", testSender.String())
	require.Error(t, err)
}

func TestEstimateCommand(t *testing.T) {
	srv, _ := testNode(t)

	out, err := execute(t, "--config", testConfig(t, srv.URL), "estimate", "transfer", testSender.String(), "5")
	require.NoError(t, err)
	require.Equal(t, "21000\n", out)
}

func TestSendCommand(t *testing.T) {
	srv, requests := testNode(t)
	path := testConfig(t, srv.URL)

	out, err := execute(t, "--config", path, "send", "--value", "0x10", "transfer", testSender.String(), "5")
	require.NoError(t, err)
	require.Equal(t, `"`+testHash.String()+`"`+"\n", out)

	var msg ethbind.TxMsg
	require.NoError(t, json.Unmarshal(requests()[0].Params[0], &msg))
	require.Equal(t, "0x10", msg.Value.String())

	out, err = execute(t, "--config", path, "send", "--wait", "transfer", testSender.String(), "5")
	require.NoError(t, err)

	var receipt ethbind.TxReceipt
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	require.Len(t, receipt.Logs, 1)
	require.Equal(t, "Transfer", receipt.Logs[0].Event)
	require.Equal(t, float64(10), receipt.Logs[0].Params["value"])
}

func TestDeployCommand(t *testing.T) {
	srv, requests := testNode(t)
	path := writeFile(t, "eth_bind.yaml", `
rpc: `+srv.URL+`
abi: `+writeFile(t, "token.abi", testAbiJson)+`
code: `+writeFile(t, "token.bin", "6060")+`
receiptInterval: 1ms
deployGas: 123456
`)

	out, err := execute(t, "--config", path, "deploy", "1000")
	require.NoError(t, err)
	require.Equal(t, `"`+testAddress.String()+`"`+"\n", out)

	var msg ethbind.TxMsg
	require.NoError(t, json.Unmarshal(requests()[0].Params[0], &msg))
	require.Equal(t, ethbind.HexBytes(append([]byte{0x60, 0x60}, word(1000)...)), msg.Data)
	require.Equal(t, "0x1e240", msg.GasLimit.String())
}

func TestReceiptCommand(t *testing.T) {
	srv, _ := testNode(t)

	out, err := execute(t, "--rpc", srv.URL, "receipt", testHash.String())
	require.NoError(t, err)
	require.Contains(t, out, testHash.String())
	require.NotContains(t, out, `"event"`)

	out, err = execute(t, "--config", testConfig(t, srv.URL), "receipt", testHash.String())
	require.NoError(t, err)
	require.Contains(t, out, `"event": "Transfer"`)

	_, err = execute(t, "--rpc", srv.URL, "receipt", "0x12")
	require.Error(t, err)
}

func TestWatchCommand(t *testing.T) {
	srv, requests := testNode(t)
	path := testConfig(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := new(syncBuffer)
	done := make(chan error, 1)
	go func() {
		_, err := executeContext(ctx, t, out, "--config", path, "watch", "--from-block", "5", "Transfer")
		done <- err
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"event":"Transfer"`)
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch didn't stop")
	}

	var methods []string
	var filter ethbind.LogFilter
	for _, req := range requests() {
		methods = append(methods, req.Method)
		if req.Method == "eth_newFilter" {
			require.NoError(t, json.Unmarshal(req.Params[0], &filter))
		}
	}
	require.Contains(t, methods, "eth_newFilter")
	require.Contains(t, methods, "eth_uninstallFilter")
	require.Equal(t, "0x5", filter.FromBlock)
	require.Equal(t, []ethbind.Address{testAddress}, filter.Address)
}
