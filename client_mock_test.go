package ethbind

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockClient is a scripted Client.
type mockClient struct {
	mock.Mock
}

var _ Client = (*mockClient)(nil)

func (self *mockClient) Call(ctx context.Context, msg TxMsg) ([]byte, error) {
	args := self.Called(ctx, msg)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

func (self *mockClient) PostTransaction(ctx context.Context, msg TxMsg) (Hash, error) {
	args := self.Called(ctx, msg)
	return args.Get(0).(Hash), args.Error(1)
}

func (self *mockClient) EstimateGas(ctx context.Context, msg TxMsg) (*big.Int, error) {
	args := self.Called(ctx, msg)
	out, _ := args.Get(0).(*big.Int)
	return out, args.Error(1)
}

func (self *mockClient) GetCode(ctx context.Context, addr Address) ([]byte, error) {
	args := self.Called(ctx, addr)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

func (self *mockClient) GetTransactionReceipt(ctx context.Context, hash Hash) (*TxReceipt, error) {
	args := self.Called(ctx, hash)
	out, _ := args.Get(0).(*TxReceipt)
	return out, args.Error(1)
}

func (self *mockClient) NewFilter(ctx context.Context, filter LogFilter) (FilterId, error) {
	args := self.Called(ctx, filter)
	return args.Get(0).(FilterId), args.Error(1)
}

func (self *mockClient) GetFilterLogs(ctx context.Context, id FilterId) ([]LogEntry, error) {
	args := self.Called(ctx, id)
	out, _ := args.Get(0).([]LogEntry)
	return out, args.Error(1)
}

func (self *mockClient) GetFilterChanges(ctx context.Context, id FilterId) ([]LogEntry, error) {
	args := self.Called(ctx, id)
	out, _ := args.Get(0).([]LogEntry)
	return out, args.Error(1)
}

func (self *mockClient) UninstallFilter(ctx context.Context, id FilterId) (bool, error) {
	args := self.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func newTestContract(t testing.TB, client Client) *Contract {
	contract, err := NewContract(client, testAbi, ContractOptions{
		Logger:               hclog.NewNullLogger(),
		SubscriptionInterval: time.Hour,
		ReceiptInterval:      time.Millisecond,
	})
	require.NoError(t, err)
	return contract
}

var (
	testAddress = MustParseAddress("0x00000000000000000000000000000000000000aa")
	testSender  = MustParseAddress("0x00000000000000000000000000000000000000bb")
	testHash    = MustParseHash("0xabababababababababababababababababababababababababababababababab")
)

func testWord(num uint64) []byte { return uintWord(num) }

func transferLog(from, to Address, value uint64) LogEntry {
	event, _ := testAbi.Event("Transfer")
	return LogEntry{
		Address: testAddress,
		Topics:  []Word{event.Selector, from.Word(), to.Word()},
		Data:    testWord(value),
	}
}
