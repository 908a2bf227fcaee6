package asnrt_test

import (
	"bytes"
	"fmt"
	"os"
	"reflect"

	"github.com/gemalto/asnrt"
	"github.com/gemalto/asnrt/tlv"
)

type Record struct {
	Serial  int64
	Name    string `asn:"common-name"`
	Active  bool
	Comment *string
}

func recordType() *asnrt.Type {
	comment := tlv.Context(0)
	return &asnrt.Type{
		Name: "Record",
		Kind: asnrt.KindSequence,
		Components: []*asnrt.Component{
			{Name: "serial", Type: asnrt.Basic(asnrt.KindInteger)},
			{Name: "common-name", Type: asnrt.Basic(asnrt.KindUTF8String)},
			{Name: "active", Type: asnrt.Basic(asnrt.KindBoolean), Default: true},
			{Name: "comment", Type: &asnrt.Type{Kind: asnrt.KindIA5String, Tag: &comment}, Optional: true},
		},
	}
}

func Example() {
	typ := recordType()

	b, err := asnrt.Marshal(asnrt.DER, typ, Record{Serial: 5, Name: "ab", Active: true})
	if err != nil {
		panic(err)
	}
	fmt.Printf("%x\n", b)

	var r Record
	if err := asnrt.Unmarshal(asnrt.BER, b, typ, &r); err != nil {
		panic(err)
	}
	fmt.Println(r.Serial, r.Name, r.Active, r.Comment == nil)

	// Output:
	// 30070201050c026162
	// 5 ab true true
}

func ExamplePrint() {
	typ := recordType()
	c, err := asnrt.DefaultBinder.Bind(typ, reflect.TypeOf(Record{}))
	if err != nil {
		panic(err)
	}

	comment := "first"
	r := Record{Serial: 1, Name: "one", Comment: &comment}
	if err := asnrt.Print(os.Stdout, &r, typ, c); err != nil {
		panic(err)
	}

	// Output:
	// {
	//   serial 1,
	//   common-name "one",
	//   active FALSE,
	//   comment "first"
	// }
}

func ExampleEncode() {
	typ := recordType()
	c, err := asnrt.DefaultBinder.Bind(typ, reflect.TypeOf(Record{}))
	if err != nil {
		panic(err)
	}

	var out bytes.Buffer
	buf, err := asnrt.NewOutputBuffer(&out, 0, asnrt.DER)
	if err != nil {
		panic(err)
	}
	r := Record{Serial: 300, Name: "x", Active: true}
	if err := asnrt.Encode(buf, &r, typ, c); err != nil {
		panic(err)
	}
	if err := buf.Flush(); err != nil {
		panic(err)
	}
	fmt.Printf("%x\n", out.Bytes())

	// Output:
	// 30070202012c0c0178
}

func ExampleIs() {
	var r Record
	err := asnrt.Unmarshal(asnrt.DER, []byte{0x30, 0x03, 0x02, 0x01, 0x05}, recordType(), &r)

	fmt.Println(asnrt.Is(err, asnrt.ErrMissingComponent))
	fmt.Println(asnrt.CodeOf(err), int(asnrt.CodeOf(err)))

	// Output:
	// true
	// missing component 8
}

func ExampleLoadModule() {
	schema := &asnrt.Schema{
		Module: "Example",
		Entries: []asnrt.SchemaEntry{
			{ID: 1, Name: "Id", Kind: asnrt.KindInteger, Tag: "[APPLICATION 1]", Explicit: true},
		},
	}
	b, err := asnrt.MarshalSchema(schema)
	if err != nil {
		panic(err)
	}

	m, err := asnrt.LoadModule(bytes.NewReader(b))
	if err != nil {
		panic(err)
	}
	defer m.Unload()

	typ, err := m.LookupName("Id")
	if err != nil {
		panic(err)
	}
	enc, err := asnrt.Marshal(asnrt.DER, typ, 300)
	if err != nil {
		panic(err)
	}
	fmt.Printf("%x\n", enc)

	// Output:
	// 61040202012c
}
