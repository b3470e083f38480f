package ethbind

import "testing"

func BenchmarkAbiFunction(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = testAbi.Function("balanceOf")
		_, _ = testAbi.Function("transfer")
		_, _ = testAbi.Function("name")
		_, _ = testAbi.Function("mint(uint256)")
	}
}

func BenchmarkAbiEvent(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = testAbi.Event("Transfer")
		_, _ = testAbi.Event("Note")
	}
}

func BenchmarkContractFunction(b *testing.B) {
	contract := newTestContract(b, new(mockClient))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		noopBoundFunc(contract.Function("balanceOf"))
		noopBoundFunc(contract.Function("transfer"))
		noopBoundFunc(contract.Function("name"))
		noopBoundFunc(contract.Function("mint(uint256)"))
	}
}

//go:noinline
func noopBoundFunc(BoundFunction, bool) {}

func BenchmarkAbiEncoding(b *testing.B) {
	types := mustParseAbiTypes(b, "uint32[2][3][4]")
	input := []interface{}{[4][3][2]uint32{
		{{1, 2}, {3, 4}, {5, 6}},
		{{7, 8}, {9, 10}, {11, 12}},
		{{13, 14}, {15, 16}, {17, 18}},
		{{19, 20}, {21, 22}, {23, 24}},
	}}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		tokens, err := EncodeTokens(types, input)
		if err != nil {
			b.Fatalf("%+v", err)
		}
		_, err = abiAppendTokens(nil, tokens)
		if err != nil {
			b.Fatalf("%+v", err)
		}
	}
}

func BenchmarkParseEventLogs(b *testing.B) {
	contract := newTestContract(b, new(mockClient))
	logs := make([]LogEntry, 64)
	for i := range logs {
		logs[i] = transferLog(testSender, testAddress, uint64(i))
	}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_, err := contract.ParseEventLogs(logs)
		if err != nil {
			b.Fatalf("%+v", err)
		}
	}
}
