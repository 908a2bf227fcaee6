// Package asnrt is a schema driven ASN.1 runtime.  It encodes and decodes
// Go values with the Basic, Canonical and Distinguished Encoding Rules
// (X.690) and the aligned and unaligned Packed Encoding Rules (X.691),
// without generated code.
//
// Types
//
// A Type describes an ASN.1 type: its Kind, tag, constraints and components.
// Types are built by hand, or loaded from a compiled schema with LoadModule.
//
// Converters
//
// A Converter maps a Type onto a Go type.  Converters for the simple kinds
// hold values in plain Go types (bool, the integer types, big.Int, float64,
// string, time.Time...).  Structured kinds are described by tables of
// MemberDescriptors, which locate each component inside the Go value and
// name the Allocator producing storage for pointer members.  The Binder
// builds converters for Go types by reflection:
//
//	type Record struct {
//		Serial  int64
//		Name    string  `asn:"common-name"`
//		Comment *string
//	}
//
//	c, err := asnrt.DefaultBinder.Bind(recordType, reflect.TypeOf(Record{}))
//
// Encoding
//
// Encode and Decode drive a converter over a Buffer, whose Rules select the
// encoding.  Marshal and Unmarshal wrap this for the common case:
//
//	b, err := asnrt.Marshal(asnrt.DER, recordType, &rec)
//
// Values can also be printed in ASN.1 value notation, compared, deep copied
// and released: see Print, Equals, Clone and Free.
//
// Errors
//
// Errors belong to a closed set, the Err* sentinels.  Use Is to test an
// error's kind, and CodeOf for its numeric code.  Every error carries the
// location it was raised at, and the path of the component being processed.
package asnrt
