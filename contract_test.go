package ethbind

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewContractConstructionErrors(t *testing.T) {
	var constructionErr *ConstructionError

	_, err := NewContract(nil, testAbi, ContractOptions{})
	require.ErrorAs(t, err, &constructionErr)

	_, err = NewContract(new(mockClient), nil, ContractOptions{})
	require.ErrorAs(t, err, &constructionErr)
}

func TestContractBindings(t *testing.T) {
	contract := newTestContract(t, new(mockClient))

	require.Len(t, contract.Functions(), 7)
	require.Len(t, contract.Events(), 2)

	fun, ok := contract.Function("mint")
	require.True(t, ok)
	require.Equal(t, "mint(address,uint256)", fun.Descriptor.Signature)

	fun, ok = contract.Function("mint(uint256)")
	require.True(t, ok)
	require.Len(t, fun.Descriptor.Inputs, 1)

	_, ok = contract.Function("burn")
	require.False(t, ok)

	_, ok = contract.Event("Transfer")
	require.True(t, ok)
}

func TestContractAt(t *testing.T) {
	contract := newTestContract(t, new(mockClient))
	require.Equal(t, ZeroAddress, contract.Address())

	same, err := contract.At(testAddress)
	require.NoError(t, err)
	require.True(t, same == contract)
	require.Equal(t, testAddress, contract.Address())

	_, err = contract.At(testAddress)
	require.NoError(t, err)

	_, err = contract.At(testSender)
	require.True(t, errors.Is(err, ErrAddressBound))
	require.Equal(t, testAddress, contract.Address())
}

func TestCallSingleOutput(t *testing.T) {
	client := new(mockClient)
	contract := newTestContract(t, client)
	_, err := contract.At(testAddress)
	require.NoError(t, err)

	var sent TxMsg
	client.On("Call", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(TxMsg) }).
		Return(testWord(7), nil).
		Once()

	balanceOf, _ := contract.Function("balanceOf")
	out, err := balanceOf.Call(context.Background(), TxMsg{From: testSender}, testSender)
	require.NoError(t, err)
	require.Equal(t, int64(7), out.(*big.Int).Int64())

	require.Equal(t, testAddress, sent.To)
	require.Equal(t, testSender, sent.From)
	expected := append(balanceOf.Descriptor.Selector[:], testSender.Word().bytes()...)
	require.Equal(t, HexBytes(expected), sent.Data)
}

func TestCallMultipleOutputs(t *testing.T) {
	client := new(mockClient)
	contract := newTestContract(t, client)

	output := append(testWord(3), testAddress.Word().bytes()...)
	client.On("Call", mock.Anything, mock.Anything).Return(output, nil).Once()

	pair, _ := contract.Function("pair")
	out, err := pair.Call(context.Background(), TxMsg{})
	require.NoError(t, err)

	vals, ok := out.([]interface{})
	require.True(t, ok)
	require.Len(t, vals, 2)
	require.Equal(t, int64(3), vals[0].(*big.Int).Int64())
	require.Equal(t, testAddress, vals[1])
}

func TestCallDecodingError(t *testing.T) {
	client := new(mockClient)
	contract := newTestContract(t, client)
	client.On("Call", mock.Anything, mock.Anything).Return([]byte{}, nil).Once()

	balanceOf, _ := contract.Function("balanceOf")
	_, err := balanceOf.Call(context.Background(), TxMsg{}, testSender)

	var decErr *DecodingError
	require.ErrorAs(t, err, &decErr)
}

func TestCallEncodingError(t *testing.T) {
	contract := newTestContract(t, new(mockClient))

	balanceOf, _ := contract.Function("balanceOf")
	_, err := balanceOf.Call(context.Background(), TxMsg{}, "not an address")

	var encErr *EncodingError
	require.ErrorAs(t, err, &encErr)
}

func TestConstantFunctionTransact(t *testing.T) {
	contract := newTestContract(t, new(mockClient))
	balanceOf, _ := contract.Function("balanceOf")

	_, err := balanceOf.PostTransaction(context.Background(), TxMsg{}, testSender)
	require.True(t, errors.Is(err, ErrConstantFunction))

	_, err = balanceOf.EstimateGas(context.Background(), TxMsg{}, testSender)
	require.True(t, errors.Is(err, ErrConstantFunction))
}

func TestPostTransactionMergesOptions(t *testing.T) {
	client := new(mockClient)
	contract := newTestContract(t, client)
	_, err := contract.At(testAddress)
	require.NoError(t, err)

	var sent []TxMsg
	client.On("PostTransaction", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = append(sent, args.Get(1).(TxMsg)) }).
		Return(testHash, nil)

	transfer, _ := contract.Function("transfer")
	opts := TxMsg{From: testSender, Data: HexBytes{0xde, 0xad}, Value: NewHexInt(5)}

	hash, err := transfer.PostTransaction(context.Background(), opts, testSender, 10)
	require.NoError(t, err)
	require.Equal(t, testHash, hash)

	other := MustParseAddress("0x00000000000000000000000000000000000000cc")
	opts.To = other
	_, err = transfer.PostTransaction(context.Background(), opts, testSender, 10)
	require.NoError(t, err)

	require.Len(t, sent, 2)
	require.Equal(t, testAddress, sent[0].To)
	require.Equal(t, other, sent[1].To)

	msg := sent[0]
	require.Equal(t, testSender, msg.From)
	require.Equal(t, int64(5), (*big.Int)(msg.Value).Int64())
	require.Equal(t, HexBytes{0xde, 0xad}, msg.Data[:2])
	require.Equal(t, transfer.Descriptor.Selector[:], []byte(msg.Data[2:6]))
	require.Len(t, msg.Data, 2+4+64)

	// The caller's data is never modified.
	require.Equal(t, HexBytes{0xde, 0xad}, opts.Data)
}

func TestEstimateGas(t *testing.T) {
	client := new(mockClient)
	contract := newTestContract(t, client)
	client.On("EstimateGas", mock.Anything, mock.Anything).Return(big.NewInt(21000), nil).Once()

	transfer, _ := contract.Function("transfer")
	gas, err := transfer.EstimateGas(context.Background(), TxMsg{From: testSender}, testSender, 1)
	require.NoError(t, err)
	require.Equal(t, int64(21000), gas.Int64())
}

func TestDeploy(t *testing.T) {
	client := new(mockClient)
	contract := newTestContract(t, client)

	var sent TxMsg
	client.On("PostTransaction", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(TxMsg) }).
		Return(testHash, nil).
		Once()
	client.On("GetTransactionReceipt", mock.Anything, testHash).Return(nil, nil).Twice()
	client.On("GetTransactionReceipt", mock.Anything, testHash).
		Return(&TxReceipt{TransactionHash: testHash, ContractAddress: testAddress}, nil).
		Once()
	client.On("GetCode", mock.Anything, testAddress).Return([]byte{0x60, 0x80}, nil).Once()

	code := []byte{0x60, 0x60}
	addr, err := contract.Deploy(context.Background(), TxMsg{From: testSender}, code, 1000)
	require.NoError(t, err)
	require.Equal(t, testAddress, addr)
	require.Equal(t, testAddress, contract.Address())
	client.AssertNumberOfCalls(t, "GetTransactionReceipt", 3)

	require.Equal(t, ZeroAddress, sent.To)
	require.Equal(t, testSender, sent.From)
	require.Equal(t, uint64(DefaultDeployGas), (*big.Int)(sent.GasLimit).Uint64())
	require.Equal(t, HexBytes(append(code, testWord(1000)...)), sent.Data)

	_, err = contract.Deploy(context.Background(), TxMsg{From: testSender}, code, 1000)
	require.True(t, errors.Is(err, ErrAddressBound))
}

func TestDeployCustomGas(t *testing.T) {
	client := new(mockClient)
	contract, err := NewContract(client, testAbi, ContractOptions{ReceiptInterval: time.Millisecond, DeployGas: 3000000})
	require.NoError(t, err)

	var sent []TxMsg
	client.On("PostTransaction", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = append(sent, args.Get(1).(TxMsg)) }).
		Return(testHash, nil)
	client.On("GetTransactionReceipt", mock.Anything, testHash).
		Return(&TxReceipt{ContractAddress: testAddress}, nil)
	client.On("GetCode", mock.Anything, testAddress).Return([]byte{}, nil)

	_, _ = contract.Deploy(context.Background(), TxMsg{}, []byte{1}, 1)
	_, _ = contract.Deploy(context.Background(), TxMsg{GasLimit: NewHexInt(42)}, []byte{1}, 1)

	require.Len(t, sent, 2)
	require.Equal(t, uint64(3000000), (*big.Int)(sent[0].GasLimit).Uint64())
	require.Equal(t, uint64(42), (*big.Int)(sent[1].GasLimit).Uint64())
}

func TestDeployWithoutCode(t *testing.T) {
	client := new(mockClient)
	contract := newTestContract(t, client)

	client.On("PostTransaction", mock.Anything, mock.Anything).Return(testHash, nil).Once()
	client.On("GetTransactionReceipt", mock.Anything, testHash).
		Return(&TxReceipt{ContractAddress: testAddress}, nil).
		Once()
	client.On("GetCode", mock.Anything, testAddress).Return([]byte{}, nil).Once()

	_, err := contract.Deploy(context.Background(), TxMsg{From: testSender}, []byte{0x60}, 1)

	var deployErr *DeploymentError
	require.ErrorAs(t, err, &deployErr)
	require.Equal(t, testHash, deployErr.TxHash)
	require.Equal(t, testAddress, deployErr.Address)
	require.Equal(t, ZeroAddress, contract.Address())
}

func TestDeployWithoutContractAddress(t *testing.T) {
	client := new(mockClient)
	contract := newTestContract(t, client)

	client.On("PostTransaction", mock.Anything, mock.Anything).Return(testHash, nil).Once()
	client.On("GetTransactionReceipt", mock.Anything, testHash).Return(&TxReceipt{}, nil).Once()

	_, err := contract.Deploy(context.Background(), TxMsg{}, []byte{0x60}, 1)

	var deployErr *DeploymentError
	require.ErrorAs(t, err, &deployErr)
	client.AssertNotCalled(t, "GetCode", mock.Anything, mock.Anything)
}

func TestPollReceiptErrorIsTerminal(t *testing.T) {
	client := new(mockClient)
	boom := errors.New("boom")
	client.On("GetTransactionReceipt", mock.Anything, testHash).Return(nil, boom).Once()

	_, err := ReceiptPoller{Client: client, Interval: time.Millisecond}.Poll(context.Background(), testHash)
	require.True(t, errors.Is(err, boom))
	client.AssertNumberOfCalls(t, "GetTransactionReceipt", 1)
}

func TestPollReceiptTimeout(t *testing.T) {
	client := new(mockClient)
	client.On("GetTransactionReceipt", mock.Anything, testHash).Return(nil, nil)

	poller := ReceiptPoller{Client: client, Interval: time.Millisecond, Timeout: 20 * time.Millisecond}
	_, err := poller.Poll(context.Background(), testHash)
	require.True(t, errors.Is(err, ErrReceiptTimeout))
}

func TestPollReceiptCanceled(t *testing.T) {
	client := new(mockClient)
	client.On("GetTransactionReceipt", mock.Anything, testHash).Return(nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ReceiptPoller{Client: client, Interval: time.Millisecond}.Poll(ctx, testHash)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.False(t, errors.Is(err, ErrReceiptTimeout))
}

func (self Word) bytes() []byte { return append([]byte(nil), self[:]...) }
