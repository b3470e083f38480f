/*
A CLI tool for working with Ethereum contracts through "ethbind": generating Go
definitions from Solidity sources, deploying contracts, calling and
transacting, waiting for receipts and watching event logs.

Installation:

	go install github.com/purelabio/ethbind/eth_bind@latest

Example usage:

	eth_bind help
	eth_bind gen -out gen_contracts.go sol/Test.sol:Test
	eth_bind --config eth_bind.yaml deploy 1000
	eth_bind --config eth_bind.yaml call balanceOf 0x00000000000000000000000000000000000000bb
	eth_bind --config eth_bind.yaml send --wait transfer 0x00000000000000000000000000000000000000bb 10
	eth_bind --config eth_bind.yaml watch Transfer

To use "gen" with "go generate", include a "go:generate" comment in your source
code:

	//go:generate eth_bind gen -out gen_contracts.go sol/Test.sol:Test

Every other command talks to a node. Settings come from a YAML file passed with
"--config" and may be overridden with flags:

	rpc: ws://localhost:8546
	from: "0x00000000000000000000000000000000000000bb"
	abi: build/Test.abi
	code: build/Test.bin
	address: "0x00000000000000000000000000000000000000aa"
	subscriptionInterval: 1s
	receiptInterval: 500ms
	receiptTimeout: 2m
	deployGas: 900000
	fetchConcurrency: 8
	logLevel: info
	metricsAddr: localhost:9100

Function arguments are parsed according to their ABI types: integers in decimal
or 0x-prefixed hex, addresses and byte arrays as hex, booleans as "true" or
"false". Arrays and tuples are written as JSON arrays, e.g. '[1,2,3]' or
'["0x00000000000000000000000000000000000000bb", 5]'. Results are printed as
JSON.
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	err := newRootCommand(os.Stdout).Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
