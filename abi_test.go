package ethbind

import (
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

const testAbiJson = `[
	{"type": "constructor", "inputs": [{"name": "supply", "type": "uint256"}], "payable": false, "stateMutability": "nonpayable"},
	{"type": "function", "name": "balanceOf", "inputs": [{"name": "owner", "type": "address"}], "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view"},
	{"type": "function", "name": "transfer", "inputs": [{"name": "to", "type": "address"}, {"name": "value", "type": "uint256"}], "outputs": [{"name": "", "type": "bool"}], "constant": false},
	{"type": "function", "name": "name", "inputs": [], "outputs": [{"name": "", "type": "string"}], "constant": true},
	{"type": "function", "name": "pair", "inputs": [], "outputs": [{"name": "count", "type": "uint"}, {"name": "owner", "type": "address"}], "constant": true},
	{"type": "function", "name": "mint", "inputs": [{"name": "value", "type": "uint256"}], "outputs": []},
	{"type": "function", "name": "mint", "inputs": [{"name": "to", "type": "address"}, {"name": "value", "type": "uint256"}], "outputs": []},
	{"type": "function", "name": "submit", "inputs": [{"name": "orders", "type": "tuple[]", "components": [{"name": "maker", "type": "address"}, {"name": "amount", "type": "uint256"}]}], "outputs": []},
	{"type": "event", "name": "Transfer", "inputs": [{"name": "from", "type": "address", "indexed": true}, {"name": "to", "type": "address", "indexed": true}, {"name": "value", "type": "uint256", "indexed": false}], "anonymous": false},
	{"type": "event", "name": "Note", "inputs": [{"name": "tag", "type": "string", "indexed": true}, {"name": "data", "type": "bytes", "indexed": false}], "anonymous": false},
	{"type": "fallback", "payable": true, "stateMutability": "payable"}
]`

var testAbi = MustParseAbiJson(testAbiJson)

func TestParseAbiJson(t *testing.T) {
	if len(testAbi) != 10 {
		t.Fatalf("expected 10 entries without the fallback, got %d: %v", len(testAbi), spew.Sdump(testAbi))
	}
	if len(testAbi.Functions()) != 7 {
		t.Fatalf("expected 7 functions, got %d", len(testAbi.Functions()))
	}
	if len(testAbi.Events()) != 2 {
		t.Fatalf("expected 2 events, got %d", len(testAbi.Events()))
	}

	con := testAbi.Constructor()
	if len(con.Inputs) != 1 || con.Inputs[0].AbiType.Type != "uint256" {
		t.Fatalf("unexpected constructor: %v", spew.Sdump(con))
	}
}

func TestImplicitConstructor(t *testing.T) {
	abi := MustParseAbiJson(`[{"type": "function", "name": "ping", "inputs": [], "outputs": []}]`)
	con := abi.Constructor()
	if len(con.Inputs) != 0 {
		t.Fatalf("expected implicit constructor without inputs, got %v", spew.Sdump(con))
	}
}

func TestParseAbiJsonUnknownType(t *testing.T) {
	_, err := ParseAbiJson(`[{"type": "modifier", "name": "onlyOwner"}]`)
	if err == nil {
		t.Fatalf("expected an error for an unknown entry type")
	}
}

func TestSelectors(t *testing.T) {
	tests := []struct {
		name      string
		signature string
		selector  string
	}{
		{"transfer", "transfer(address,uint256)", "a9059cbb"},
		{"balanceOf", "balanceOf(address)", "70a08231"},
		{"name", "name()", "06fdde03"},
	}

	for _, test := range tests {
		fun, ok := testAbi.Function(test.name)
		if !ok {
			t.Fatalf("function %q not found", test.name)
		}
		if fun.Signature != test.signature {
			t.Fatalf("expected signature %q, got %q", test.signature, fun.Signature)
		}
		if fun.SelectorHex() != test.selector {
			t.Fatalf("expected selector %q for %q, got %q", test.selector, test.signature, fun.SelectorHex())
		}
	}

	event, ok := testAbi.Event("Transfer")
	if !ok {
		t.Fatalf("event Transfer not found")
	}
	const topic = "ddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"
	if event.SelectorHex() != topic {
		t.Fatalf("expected Transfer topic %q, got %q", topic, event.SelectorHex())
	}
}

func TestSelectorsDistinct(t *testing.T) {
	seen := map[[4]byte]string{}
	for _, fun := range testAbi.Functions() {
		if other, ok := seen[fun.Selector]; ok {
			t.Fatalf("selector collision between %q and %q", other, fun.Signature)
		}
		seen[fun.Selector] = fun.Signature
	}
}

func TestOverloadedFunctions(t *testing.T) {
	fun, ok := testAbi.Function("mint")
	if !ok || fun.Signature != "mint(address,uint256)" {
		t.Fatalf("expected the last declared overload, got %v", spew.Sdump(fun))
	}

	fun, ok = testAbi.Function("mint(uint256)")
	if !ok || len(fun.Inputs) != 1 {
		t.Fatalf("expected lookup by signature to find mint(uint256), got %v", spew.Sdump(fun))
	}
}

func TestConstantFlag(t *testing.T) {
	tests := map[string]bool{
		"balanceOf": true,  // stateMutability: view
		"name":      true,  // constant: true
		"transfer":  false, // constant: false
		"mint":      false, // neither
	}
	for name, constant := range tests {
		fun, _ := testAbi.Function(name)
		if fun.Constant != constant {
			t.Fatalf("expected %q to have Constant = %v", name, constant)
		}
	}
}

func TestTupleSignature(t *testing.T) {
	fun, ok := testAbi.Function("submit")
	if !ok {
		t.Fatalf("function submit not found")
	}
	const sig = "submit((address,uint256)[])"
	if fun.Signature != sig {
		t.Fatalf("expected signature %q, got %q", sig, fun.Signature)
	}
	if fun.Inputs[0].AbiType.IsStaticallySized() {
		t.Fatalf("expected a dynamic array of tuples to be dynamically sized")
	}
}

func TestParseAbiType(t *testing.T) {
	tests := []struct {
		input string
		typ   string
		kind  AbiKind
		size  int
	}{
		{"bool", "bool", AbiKindBool, 32},
		{"uint", "uint256", AbiKindUint, 32},
		{"int8", "int8", AbiKindInt, 32},
		{"address", "address", AbiKindAddress, 32},
		{"function", "function", AbiKindFunction, 32},
		{"byte", "bytes1", AbiKindDenseArray, 32},
		{"bytes32", "bytes32", AbiKindDenseArray, 32},
		{"bytes", "bytes", AbiKindDenseArray, -1},
		{"string", "string", AbiKindString, -1},
		{"uint32[2][3]", "uint32[2][3]", AbiKindSparseArray, 192},
		{"string[2]", "string[2]", AbiKindSparseArray, -1},
		{"address[]", "address[]", AbiKindSparseArray, -1},
	}

	for _, test := range tests {
		typ, err := ParseAbiType(test.input)
		if err != nil {
			t.Fatalf("failed to parse %q: %+v", test.input, err)
		}
		if typ.Type != test.typ || typ.Kind != test.kind || typ.Size() != test.size {
			t.Fatalf("unexpected result for %q: %v", test.input, spew.Sdump(typ))
		}
	}

	nested, _ := ParseAbiType("uint32[2][3]")
	if nested.ArrayLen != 3 || nested.Elem.ArrayLen != 2 || nested.Elem.Elem.Bits != 32 {
		t.Fatalf("expected an array of 3 arrays of 2, got %v", spew.Sdump(nested))
	}

	for _, input := range []string{"uint7", "uint264", "bytes0", "bytes33", "tuple", "mapping", ""} {
		_, err := ParseAbiType(input)
		if err == nil {
			t.Fatalf("expected an error for %q", input)
		}
	}
}

func TestReadContractDefs(t *testing.T) {
	input := `{"contracts": {
		"token.sol:Token": {"abi": ` + quoteJson(testAbiJson) + `, "bin": "6060"},
		"ping.sol:Ping": {"abi": [{"type": "function", "name": "ping", "inputs": [], "outputs": []}], "bin": "0x6061"}
	}}`

	defs, err := ReadContractDefs(strings.NewReader(input))
	if err != nil {
		t.Fatalf("%+v", err)
	}

	token := defs["token.sol:Token"]
	if token.ContractName != "Token" || token.FileName != "token.sol" || len(token.Abi) != 10 {
		t.Fatalf("unexpected contract def: %v", spew.Sdump(token))
	}
	if token.Code.String() != "0x6060" {
		t.Fatalf("unexpected code: %v", token.Code)
	}

	ping := defs["ping.sol:Ping"]
	if len(ping.Abi.Functions()) != 1 || ping.Code.String() != "0x6061" {
		t.Fatalf("unexpected contract def: %v", spew.Sdump(ping))
	}
}

func quoteJson(input string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\t", `\t`)
	return `"` + replacer.Replace(input) + `"`
}
