/*
Contract bindings for Ethereum nodes reached over JSON-RPC. Turns an ABI and an
address into typed calls, decoded results, decoded event logs and polling log
subscriptions.

Features:

	* ABI parsing, with selectors computed once per ABI

	* ABI encoding and decoding of every Solidity type, including nested arrays
	  and tuples

	* contract bindings: call, transact, estimate gas, deploy

	* event log decoding

	* log subscriptions over server-side filters, polled at a fixed interval

	* transaction receipt polling

	* HTTP and WebSocket transports

	* CLI tool for generating bindings and poking at deployed contracts
	  (see "eth_bind")

Types

Interacting with Ethereum over RPC involves transmitting raw bytes, addresses,
hashes, and numbers in a hex-encoded format prefixed with "0x". This package
provides aliases for regular Go types such as []byte, [32]byte, *big.Int,
uint64, specialized for hex encoding and decoding.

To avoid potential gotchas, all byte array types such as Address, Hash, and Word
have a special rule: a zero-initialized array is JSON-encoded as "null", not as
"0x0000000000000.....". For consistency, this rule also affects MarshalText,
where an empty array encodes as "". However, the .String() method is unaffected.

RPC

Connect to an Ethereum node:

	trans, err := ethbind.Dial("wss://some-host:8546", logger)
	client := ethbind.RpcClient{Trans: trans}

Anything implementing "Client" will do; tests usually provide a fake.

Contracts

Parse the ABI once, bind it as many times as needed:

	var TokenAbi = ethbind.MustParseAbiJson(tokenAbiJson)

	token, err := ethbind.NewContract(client, TokenAbi, ethbind.ContractOptions{Logger: logger})
	if err != nil {
		return err
	}
	defer token.Close(context.Background())

	_, err = token.At(tokenAddress)

Call a method. With one output, the result is that output; otherwise it's a
slice with one element per output:

	balanceOf, _ := token.Function("balanceOf")
	balance, err := balanceOf.Call(ctx, ethbind.TxMsg{}, holder)
	fmt.Println(balance.(*big.Int))

Transact:

	transfer, _ := token.Function("transfer")
	hash, err := transfer.PostTransaction(ctx, ethbind.TxMsg{From: sender}, recipient, amount)
	receipt, err := token.PollTransactionReceipt(ctx, hash)
	receipt, err = token.ParseTransactionEvents(receipt)

Deploy. The contract binds itself to the new address on success:

	addr, err := token.Deploy(ctx, ethbind.TxMsg{From: sender}, code, initialSupply)

Events

Subscribe to an event, or to every event with "":

	id, err := token.Subscribe("Transfer", ethbind.LogFilter{FromBlock: "0x0"},
		func(logs []ethbind.LogEntry, err error) {
			if err != nil {
				log.Println(err)
				return
			}
			for _, entry := range logs {
				fmt.Println(entry.Event, entry.Params["value"])
			}
		})

	err = token.Unsubscribe(ctx, id)

The callback first receives the logs that already match, then new logs once per
"ContractOptions.SubscriptionInterval". Errors, including panics in the
callback, are reported to the affected subscription only.

Metrics

Collectors are registered on "Registry". Serve it with "promhttp".
*/
package ethbind
