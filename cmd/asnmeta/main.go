package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ansel1/merry"
	"github.com/gemalto/asnrt"
	"github.com/gemalto/flume"
)

var log = flume.New("asnmeta")

func main() {
	flag.Usage = func() {
		_, _ = fmt.Fprintln(flag.CommandLine.Output(), "Usage of asnmeta:")
		_, _ = fmt.Fprintln(flag.CommandLine.Output(), "")
		_, _ = fmt.Fprintln(flag.CommandLine.Output(), "Compiles a JSON type table into the CBOR module format loaded by asnrt.LoadModule,")
		_, _ = fmt.Fprintln(flag.CommandLine.Output(), "dumps compiled modules, and generates Go types for a module's structured types.")
		_, _ = fmt.Fprintln(flag.CommandLine.Output(), "")
		_, _ = fmt.Fprintln(flag.CommandLine.Output(), "  asnmeta -i records.json -o records.asnc")
		_, _ = fmt.Fprintln(flag.CommandLine.Output(), "  asnmeta -d json -i records.asnc")
		_, _ = fmt.Fprintln(flag.CommandLine.Output(), "  asnmeta -g -p records -i records.asnc -o records.go")
		_, _ = fmt.Fprintln(flag.CommandLine.Output(), "")
		flag.PrintDefaults()
	}

	var inputFilename string
	var outputFilename string
	var dump string
	var gen bool
	var pkg string
	var verbose bool
	var usage bool

	flag.StringVar(&inputFilename, "i", "", "Input `filename`: a JSON type table, or a compiled module with -d or -g.  Required.")
	flag.StringVar(&outputFilename, "o", "", "Output `filename`.  Defaults to standard out.")
	flag.StringVar(&dump, "d", "", "Dump a compiled module, as `json` or hex.")
	flag.BoolVar(&gen, "g", false, "Generate Go types for a compiled module.")
	flag.StringVar(&pkg, "p", "main", "Go `package` name in generated code.")
	flag.BoolVar(&verbose, "v", false, "Log debug output.")
	flag.BoolVar(&usage, "h", false, "Show this usage message.")
	flag.Parse()

	if usage {
		flag.Usage()
		os.Exit(0)
	}

	if verbose {
		flume.Configure(flume.Config{
			Development:  true,
			DefaultLevel: flume.DebugLevel,
		})
	}

	if inputFilename == "" {
		fmt.Println("input file name cannot be empty")
		flag.Usage()
		os.Exit(1)
	}

	input, err := os.ReadFile(inputFilename)
	if err != nil {
		fmt.Println("error reading input file: ", err.Error())
		os.Exit(1)
	}

	var out []byte
	switch {
	case dump != "":
		out, err = dumpModule(input, dump)
	case gen:
		out, err = genModule(input, pkg)
	default:
		out, err = compile(input)
	}
	if err != nil {
		fmt.Println(asnrt.Details(err))
		os.Exit(1)
	}

	var outputWriter io.Writer = os.Stdout

	if outputFilename != "" {
		p, err := filepath.Abs(outputFilename)
		if err != nil {
			panic(err)
		}

		fmt.Println("writing to", p)

		f, err := os.Create(p)
		if err != nil {
			panic(err)
		}

		outputWriter = f

		defer func() {
			err := f.Sync()
			if err != nil {
				fmt.Println("error syncing file: ", err.Error())
			}
			err = f.Close()
			if err != nil {
				fmt.Println("error closing file: ", err.Error())
			}
		}()
	}

	w := bufio.NewWriter(outputWriter)
	if _, err := w.Write(out); err != nil {
		fmt.Println("error writing to output file", err.Error())
		os.Exit(1)
	}
	if err := w.Flush(); err != nil {
		fmt.Println("error writing to output file", err.Error())
		os.Exit(1)
	}
}

// compile parses a JSON type table, checks that it links, and returns it
// in the compiled format.
func compile(input []byte) ([]byte, error) {
	var s asnrt.Schema
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, merry.Prepend(err, "error parsing type table")
	}
	if _, err := asnrt.NewModule(&s); err != nil {
		return nil, merry.Prepend(err, "error linking type table")
	}
	return asnrt.MarshalSchema(&s)
}

func readModule(input []byte) (*asnrt.Schema, error) {
	s, err := asnrt.DecodeSchema(bytes.NewReader(input))
	if err != nil {
		return nil, merry.Prepend(err, "error reading compiled module")
	}
	return s, nil
}

func dumpModule(input []byte, format string) ([]byte, error) {
	s, err := readModule(input)
	if err != nil {
		return nil, err
	}
	switch format {
	case "json":
		b, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return nil, merry.Wrap(err)
		}
		return append(b, '\n'), nil
	case "hex":
		return []byte(hex.Dump(input)), nil
	}
	return nil, merry.Errorf("invalid dump format: %s", format)
}

func genModule(input []byte, pkg string) ([]byte, error) {
	s, err := readModule(input)
	if err != nil {
		return nil, err
	}
	if _, err := asnrt.NewModule(s); err != nil {
		return nil, merry.Prepend(err, "error linking module")
	}
	return genCode(s, pkg)
}
