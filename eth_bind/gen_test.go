package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func solcOutput(t *testing.T) string {
	content, err := json.Marshal(map[string]interface{}{
		"contracts": map[string]interface{}{
			"sol/Token.sol:Token": map[string]interface{}{
				"abi": testAbiJson,
				"bin": "6060",
			},
			"sol/Token.sol:Helper": map[string]interface{}{
				"abi": json.RawMessage(`[]`),
				"bin": "",
			},
		},
		"version": "0.8.24",
	})
	require.NoError(t, err)
	return writeFile(t, "combined.json", string(content))
}

func TestGen(t *testing.T) {
	out := filepath.Join(t.TempDir(), "gen_contracts.go")

	_, err := execute(t, "gen", "--input", solcOutput(t), "--out", out, "--pkg", "contracts", "sol/Token.sol:Token")
	require.NoError(t, err)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	source := string(content)

	require.True(t, strings.HasPrefix(source, "// Code generated by eth_bind gen. DO NOT EDIT."))
	require.Contains(t, source, "package contracts")
	require.Contains(t, source, `import "github.com/purelabio/ethbind"`)
	require.Contains(t, source, "var TokenAbi = ")
	require.Contains(t, source, "const TokenAbiJson = `")
	require.Contains(t, source, "const TokenCodeHex = `0x6060`")
	require.Contains(t, source, "func NewToken(client ethbind.Client, opts ethbind.ContractOptions) (*ethbind.Contract, error) {")
	require.NotContains(t, source, "Helper")
}

func TestGenSelf(t *testing.T) {
	out := filepath.Join(t.TempDir(), "gen_contracts.go")

	_, err := execute(t, "gen", "--self", "--input", solcOutput(t), "--out", out, "--pkg", "ethbind", "sol/Token.sol:Token", "sol/Token.sol:Helper")
	require.NoError(t, err)

	content, err := os.ReadFile(out)
	require.NoError(t, err)
	source := string(content)

	require.NotContains(t, source, "import")
	require.Contains(t, source, "func NewToken(client Client, opts ContractOptions) (*Contract, error) {")
	require.Contains(t, source, "func NewHelper(")
}

func TestGenErrors(t *testing.T) {
	input := solcOutput(t)
	out := filepath.Join(t.TempDir(), "gen_contracts.go")

	_, err := execute(t, "gen", "--input", input, "sol/Token.sol:Token")
	require.Error(t, err)
	require.Contains(t, err.Error(), "--out")

	_, err = execute(t, "gen", "--input", input, "--out", out, "Token")
	require.Error(t, err)
	require.Contains(t, err.Error(), "filePath:contractName")

	_, err = execute(t, "gen", "--input", input, "--out", out, "sol/Token.sol:Missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "sol/Token.sol:Helper")

	_, err = os.Stat(out)
	require.True(t, os.IsNotExist(err))
}
