package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/gemalto/asnrt"
	"github.com/gemalto/asnrt/internal/asnutil"
	"github.com/gemalto/asnrt/tlv"
	"github.com/gemalto/flume"
)

const (
	FormatJSON = "json"
	FormatHex  = "hex"
)

func main() {
	flag.Usage = func() {
		s := `asnpp - ASN.1 pretty printer

Usage:  asnpp [options] [input]

Pretty prints BER, CER or DER encoded values.  Reads values in hex or
json format, and prints them as tag-length-value text, raw hex, pretty
printed hex, or json.

The input argument should be a string.  If not present, input will be
read from standard in.

When reading hex input, any non-hex characters, such as whitespace or
embedded formatting characters, will be ignored.  The 'prettyhex' output
format embeds such characters, but because they are ignored, 'prettyhex'
output is still valid 'hex' input.

With -m and -t, values are decoded as the named type of a compiled
module, and printed in ASN.1 value notation.  This works with every rule
set, including the packed encoding rules, selected with -r.

Examples:

    asnpp 3007020105 0c026162
    echo "3007020105 0c026162" | asnpp -o prettyhex
    asnpp -m records.asnc -t Record -r uper 004140985880

Output (in 'text' format):

    SEQUENCE (7):
      INTEGER (1): 5
      UTF8String (2): "ab"

prettyhex format:

    30 | 07
      02 | 01 | 05
      0c | 02 | 6162
`
		_, _ = fmt.Fprintln(flag.CommandLine.Output(), s)
		flag.PrintDefaults()
	}

	var inFormat, outFormat, inFile string
	var modFile, typeName, rulesName string
	var verbose bool
	flag.StringVar(&inFormat, "i", "", "input format: hex|json, defaults to auto detect")
	flag.StringVar(&outFormat, "o", "", "output format: text|hex|prettyhex|json, defaults to text")
	flag.StringVar(&inFile, "f", "", "input file name, defaults to stdin")
	flag.StringVar(&modFile, "m", "", "compiled module file")
	flag.StringVar(&typeName, "t", "", "type to decode values as, by name or id (decimal or 0x hex), requires -m")
	flag.StringVar(&rulesName, "r", "ber", "encoding rules: ber|cer|der|uper|aper")
	flag.BoolVar(&verbose, "v", false, "log debug output to stderr")

	flag.Parse()

	if verbose {
		flume.Configure(flume.Config{
			Development:  true,
			DefaultLevel: flume.DebugLevel,
		})
	}

	buf := bytes.NewBuffer(nil)

	if inFile != "" {
		file, err := os.ReadFile(inFile)
		if err != nil {
			fail("error reading input file", err)
		}
		buf = bytes.NewBuffer(file)
	} else if inArg := strings.Join(flag.Args(), ""); inArg != "" {
		buf.WriteString(inArg)
	} else {
		scanner := bufio.NewScanner(os.Stdin)

		for scanner.Scan() {
			buf.Write(scanner.Bytes())
		}

		if err := scanner.Err(); err != nil {
			fail("error reading standard input", err)
		}
	}

	if buf.Len() == 0 {
		fail("no input", nil)
	}

	if inFormat == "" {
		// auto detect input format
		switch buf.Bytes()[0] {
		case '[', '{':
			inFormat = FormatJSON
		default:
			inFormat = FormatHex
		}
	}

	outFormat = strings.ToLower(outFormat)
	if outFormat == "" {
		outFormat = "text"
	}

	if modFile != "" || typeName != "" {
		if strings.ToLower(inFormat) != FormatHex {
			fail("typed decoding needs hex input", nil)
		}
		rules, err := asnrt.ParseRules(rulesName)
		if err != nil {
			fail("invalid rules", err)
		}
		printTyped(modFile, typeName, rules, tlv.Hex2bytes(buf.String()))
		return
	}

	var count int

	switch strings.ToLower(inFormat) {
	case FormatJSON:
		var raw tlv.TLV
		decoder := json.NewDecoder(buf)
		for {
			err := decoder.Decode(&raw)
			switch {
			case errors.Is(err, io.EOF):
				return
			case err == nil:
			default:
				fail("error parsing JSON", err)
			}
			printTLV(outFormat, raw, count)
			count++
		}
	case FormatHex:
		raw := tlv.TLV(tlv.Hex2bytes(buf.String()))
		for len(raw) > 0 {
			if err := raw.Valid(); err != nil {
				fail("invalid input", err)
			}
			printTLV(outFormat, raw[:raw.FullLen()], count)
			count++
			raw = raw.Next()
		}
	default:
		fail("invalid input format: "+inFormat, nil)
	}
}

func printTLV(outFormat string, raw tlv.TLV, count int) {
	if count > 0 {
		fmt.Println("")
	}
	switch outFormat {
	case "text":
		if err := tlv.Print(os.Stdout, "", "  ", raw); err != nil {
			fail("error printing", err)
		}
	case "json":
		s, err := json.MarshalIndent(raw, "", "  ")
		if err != nil {
			fail("error printing JSON", err)
		}
		fmt.Print(string(s))
	case "hex":
		fmt.Print(hex.EncodeToString(raw))
	case "prettyhex":
		if err := tlv.PrintPrettyHex(os.Stdout, "", "  ", raw); err != nil {
			fail("error printing", err)
		}
	default:
		fail("invalid output format: "+outFormat, nil)
	}
}

// printTyped decodes every value in data as the named type of the module,
// into a Go value synthesized for the type.
func printTyped(modFile, typeName string, rules asnrt.Rules, data []byte) {
	if modFile == "" || typeName == "" {
		fail("-m and -t must be used together", nil)
	}
	m, err := asnrt.LoadModuleFile(modFile)
	if err != nil {
		fail("error loading module", err)
	}
	defer m.Unload()

	var typ *asnrt.Type
	if id, perr := asnutil.ParseInt64(typeName); perr == nil {
		typ, err = m.Lookup(id)
	} else {
		typ, err = m.LookupName(typeName)
	}
	if err != nil {
		fail("unknown type", err)
	}

	native, err := m.Binder().NativeType(typ)
	if err != nil {
		fail("can't decode "+typeName, err)
	}
	c, err := m.Binder().Bind(typ, native)
	if err != nil {
		fail("can't decode "+typeName, err)
	}

	in, err := asnrt.Wrap(data, rules)
	if err != nil {
		fail("invalid input", err)
	}
	for count := 0; ; count++ {
		if in.Remaining() == 0 || rules.Packed() && in.Remaining() < 8 {
			return
		}
		v := reflect.New(native)
		if err := asnrt.Decode(in, v.Interface(), typ, c); err != nil {
			fail("error decoding", err)
		}
		if count > 0 {
			fmt.Println("")
		}
		if err := asnrt.Print(os.Stdout, v.Interface(), typ, c); err != nil {
			fail("error printing", err)
		}
		fmt.Println("")
		if rules.Packed() {
			// packed values are padded to whole octets
			if err := in.Align(); err != nil {
				return
			}
		}
	}
}

func fail(msg string, err error) {
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, msg+":", asnrt.Details(err))
	} else {
		_, _ = fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(1)
}
