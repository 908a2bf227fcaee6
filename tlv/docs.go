// Package tlv reads and writes the tag-length-value framing shared by the
// Basic, Canonical and Distinguished Encoding Rules (X.690).
//
// The core representation is the tlv.TLV type, a []byte holding a single
// encoded value.  Its accessors parse identifier and length octets on the
// fly, and never panic on truncated or malformed input, which makes it
// suitable for dumping untrusted data:
//
//	t := tlv.TLV(tlv.Hex2bytes("3006020105 0101ff"))
//	tlv.Print(os.Stdout, "", "  ", t)
//
// prints
//
//	SEQUENCE (6):
//	  INTEGER (1): 5
//	  BOOLEAN (1): true
//
// Only definite lengths are considered valid.  ReadHeader reports
// indefinite lengths as LengthIndefinite and leaves the decision to the
// caller.
//
// The package also carries the content encodings shared by every rule set
// that embeds BER contents: two's complement integers (AppendInt, ParseInt)
// and object identifier arcs (AppendOID, ParseOID).
package tlv
