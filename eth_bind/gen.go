package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"go/format"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"text/template"

	"github.com/Mitranim/repr"
	"github.com/pkg/errors"
	"github.com/purelabio/ethbind"
	"github.com/spf13/cobra"
)

const pkgPath = "github.com/purelabio/ethbind"

type genOptions struct {
	solc  string
	input string
	out   string
	pkg   string
	self  bool
}

/*
Reads Solidity contracts as *.sol files and outputs ABI definitions as *.go
code. Requires a Solidity compiler; see the documentation at
https://solidity.readthedocs.io

The generated file contains, for each contract: the Abi data structure, the
JSON ABI string, the code as bytes and as a hex-encoded string, and a
"New<Name>" function binding the ABI to a client. The solc compiler is invoked
with "--optimize". The generated code has no impact on program startup.
*/
func newGenCommand() *cobra.Command {
	var opts genOptions

	cmd := &cobra.Command{
		Use:   "gen <filePath:contractName ...>",
		Short: "Generate Go definitions from Solidity contracts",
		Long: `Generate Go definitions from Solidity contracts.

Specs must have the form "filePath:contractName". Examples:

	eth_bind gen -out=gen_contracts.go sol/Test.sol:Test
	eth_bind gen -out=gen_contracts.go sol/file0.sol:A sol/file0.sol:B sol/file1.sol:C

The compiler can be overridden with "--solc" or the SOLC environment variable.
With "--input", reads "solc --combined-json=abi,bin" output from that file
instead of invoking the compiler.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if os.Getenv("SOLC") != "" && !cmd.Flags().Changed("solc") {
				opts.solc = os.Getenv("SOLC")
			}
			return runGen(opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.solc, "solc", "solc", "Solidity compiler")
	flags.StringVar(&opts.input, "input", "", "read compiler output from this file instead of running solc")
	flags.StringVar(&opts.out, "out", "", "output path for the generated Go file (required)")
	flags.StringVar(&opts.pkg, "pkg", "main", "package name for the generated code")
	flags.BoolVar(&opts.self, "self", false, "generate without imports or package prefixes")
	return cmd
}

func runGen(opts genOptions, specs []string) error {
	if opts.out == "" {
		return errors.New(`must specify "--out": output path for the generated Go file`)
	}

	// Extract file paths from <filePath>:<contractName> specs
	filePaths := []string{}
	for _, spec := range specs {
		pair := strings.Split(spec, ":")
		if len(pair) < 2 {
			return errors.Errorf(`contract specs must have the form "<filePath>:<contractName>", got %q`, spec)
		}
		filePaths = append(filePaths, pair[0])
	}

	compiled, err := compilerOutput(opts, filePaths)
	if err != nil {
		return err
	}

	defs, err := ethbind.ReadContractDefs(compiled)
	if err != nil {
		return errors.Wrap(err, "failed to decode ABI output from solc")
	}

	source, err := generate(opts, defs, specs)
	if err != nil {
		return err
	}

	const readWriteMode = os.FileMode(0600)
	err = os.WriteFile(opts.out, source, readWriteMode)
	if err != nil {
		return errors.Wrapf(err, "failed to write %q", opts.out)
	}
	return nil
}

func compilerOutput(opts genOptions, filePaths []string) (io.Reader, error) {
	if opts.input != "" {
		content, err := os.ReadFile(opts.input)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read %q", opts.input)
		}
		return bytes.NewReader(content), nil
	}

	solcArgs := append([]string{"--combined-json=abi,bin", "--optimize"}, filePaths...)
	cmd := exec.Command(opts.solc, solcArgs...)

	var buf bytes.Buffer
	cmd.Stdin = os.Stdin
	cmd.Stdout = &buf
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	if err != nil {
		return nil, errors.Wrap(err, "failed to invoke solc")
	}
	return &buf, nil
}

// Renders the picked contracts as formatted Go source.
func generate(opts genOptions, defs map[string]ethbind.ContractDef, specs []string) ([]byte, error) {
	// Pick the specified contracts, validating their presence.
	picked := make([]ethbind.ContractDef, 0, len(specs))
	for _, spec := range specs {
		def, ok := defs[spec]
		if !ok {
			return nil, errors.Errorf("contract %q is missing from the solc output; found contracts: %q",
				spec, sortedDefNames(defs))
		}

		pretty, err := prettyJson(def.AbiJson)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid ABI of %q", spec)
		}
		def.AbiJson = pretty
		picked = append(picked, def)
	}

	gen := generator{self: opts.self}
	tpl, err := gen.template()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "// Code generated by eth_bind gen. DO NOT EDIT.\n\npackage %v\n", opts.pkg)
	if !opts.self {
		fmt.Fprintf(&buf, "import %q\n", pkgPath)
	}

	err = tpl.Execute(&buf, picked)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	source, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "generated invalid Go code")
	}
	return source, nil
}

type generator struct {
	self bool
}

func (self generator) template() (*template.Template, error) {
	return template.New("").
		Funcs(template.FuncMap{
			"pkgPrefix": self.pkgPrefix,
			"repr":      self.repr,
			"reprBytes": func(input []byte) string { return self.repr(input) },
		}).
		Parse(`
{{range .}}

var {{.ContractName}}Abi = {{.Abi | repr}}

const {{.ContractName}}AbiJson = ` + "`" + `{{.AbiJson}}` + "`" + `

var {{.ContractName}}Code = {{.Code | reprBytes}}

const {{.ContractName}}CodeHex = ` + "`" + `{{.Code.String}}` + "`" + `

// Binds the {{.ContractName}} ABI to a client. Use "At" or "Deploy" to set the address.
func New{{.ContractName}}(client {{pkgPrefix}}Client, opts {{pkgPrefix}}ContractOptions) (*{{pkgPrefix}}Contract, error) {
	return {{pkgPrefix}}NewContract(client, {{.ContractName}}Abi, opts)
}

{{end}}
`)
}

func (self generator) pkgPrefix() string {
	if self.self {
		return ""
	}
	return "ethbind."
}

func (self generator) repr(val interface{}) string {
	if self.self {
		return repr.StringC(val, repr.Config{
			PackageMap: map[string]string{
				pkgPath: "",
			},
		})
	}
	return repr.String(val)
}

func sortedDefNames(defs map[string]ethbind.ContractDef) []string {
	var names []string
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func prettyJson(input string) (string, error) {
	var val interface{}
	err := json.Unmarshal([]byte(input), &val)
	if err != nil {
		return "", errors.WithStack(err)
	}
	pretty, err := json.MarshalIndent(val, "", "\t")
	return string(pretty), errors.WithStack(err)
}
