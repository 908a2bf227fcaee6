package asnrt

import (
	"bytes"
	"reflect"
	"sort"
	"strconv"

	"github.com/ansel1/merry"
	"github.com/gemalto/asnrt/tlv"
)

// Basic, canonical and distinguished encoding rules, X.690.  Lengths are
// always definite.  Headers are written after the contents, once their
// length is known, by inserting them in front.

func encodeBER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	if err := checkNative(v, t, c); err != nil {
		return err
	}
	switch t.Kind {
	case KindOpen:
		return errorf(ErrNoMatchInfoObj, "open type %v outside a SEQUENCE or SET", t)
	case KindChoice:
		if t.Tag == nil {
			return encodeChoiceBER(buf, v, t, c)
		}
		// tags on a CHOICE are explicit
		return wrapBER(buf, *t.Tag, true, func() error {
			return encodeChoiceBER(buf, v, t, c)
		})
	}
	tag, _ := t.innerTag()
	body := func() error {
		return wrapBER(buf, tag, t.Kind.constructed(), func() error {
			return encodeContentBER(buf, v, t, c)
		})
	}
	if t.Tag != nil && t.Explicit {
		return wrapBER(buf, *t.Tag, true, body)
	}
	return body()
}

// wrapBER writes contents, then inserts the header in front of them.
func wrapBER(buf *Buffer, tag tlv.Tag, constructed bool, contents func() error) error {
	start := buf.pos
	if err := contents(); err != nil {
		return err
	}
	h := tlv.Header{Tag: tag, Constructed: constructed, Length: buf.pos - start}
	return buf.insert(start, tlv.AppendHeader(nil, h))
}

func encodeContentBER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	switch t.Kind {
	case KindBoolean:
		bc, ok := c.(BooleanConverter)
		if !ok {
			return abstract(c, t)
		}
		if bc.Bool(v) {
			return buf.WriteByte(0xff)
		}
		return buf.WriteByte(0)
	case KindNull:
		return nil
	case KindInteger:
		ic, ok := c.(IntegerConverter)
		if !ok {
			return abstract(c, t)
		}
		return ic.EncodeBER(buf, v, t)
	case KindEnumerated:
		e, err := enumOf(v, t, c)
		if err != nil {
			return err
		}
		_, err = buf.Write(tlv.AppendInt64(nil, e))
		return err
	case KindReal:
		f, err := realOf(v, t, c)
		if err != nil {
			return err
		}
		_, err = buf.Write(appendReal(nil, f))
		return err
	case KindBitString:
		b, err := bitsOf(v, t, c)
		if err != nil {
			return err
		}
		if err := buf.WriteByte(byte(len(b.Bytes)*8 - b.BitLength)); err != nil {
			return err
		}
		_, err = buf.Write(b.Bytes)
		return err
	case KindOctetString, KindCharacterString:
		p, err := octetsOf(v, t, c)
		if err != nil {
			return err
		}
		_, err = buf.Write(p)
		return err
	case KindObjectIdentifier, KindRelativeOID:
		p, err := oidOf(v, t, c)
		if err != nil {
			return err
		}
		_, err = buf.Write(p)
		return err
	case KindGeneralizedTime, KindUTCTime:
		s, err := getTime(v, t, c)
		if err != nil {
			return err
		}
		_, err = buf.Write([]byte(s))
		return err
	case KindSequence, KindSet:
		return encodeCompositeBER(buf, v, t, c)
	case KindSequenceOf, KindSetOf:
		return encodeListBER(buf, v, t, c)
	}
	if t.Kind.IsString() {
		s, err := stringOf(v, t, c)
		if err != nil {
			return err
		}
		p, err := encodeChars(t.Kind, s)
		if err != nil {
			return err
		}
		_, err = buf.Write(p)
		return err
	}
	return errorf(ErrInvalidEncodeRule, "unknown kind %v", t.Kind)
}

// The value accessors below read a primitive through its converter and
// check it against the type's constraints.

func enumOf(v reflect.Value, t *Type, c Converter) (int64, error) {
	ec, ok := c.(EnumeratedConverter)
	if !ok {
		return 0, abstract(c, t)
	}
	e, err := ec.Enum(v, t)
	if err != nil {
		return 0, err
	}
	if _, it := t.ItemByValue(e); it == nil {
		return 0, errorf(ErrInvalidEnum, "%d is not an item of %v", e, t)
	}
	return e, nil
}

func realOf(v reflect.Value, t *Type, c Converter) (float64, error) {
	rc, ok := c.(RealConverter)
	if !ok {
		return 0, abstract(c, t)
	}
	f := rc.Float(v)
	return f, checkReal(t, f)
}

func bitsOf(v reflect.Value, t *Type, c Converter) (BitString, error) {
	bc, ok := c.(BitStringConverter)
	if !ok {
		return BitString{}, abstract(c, t)
	}
	b := bc.Bits(v)
	n := (b.BitLength + 7) / 8
	if b.BitLength < 0 || len(b.Bytes) < n {
		return BitString{}, errorf(ErrInvalidLength, "%d bits in %d bytes", b.BitLength, len(b.Bytes))
	}
	if err := checkSize(t, b.BitLength); err != nil {
		return BitString{}, err
	}
	// unused bits are zero
	p := append([]byte(nil), b.Bytes[:n]...)
	if r := b.BitLength % 8; r != 0 {
		p[n-1] &= 0xff << uint(8-r)
	}
	return BitString{Bytes: p, BitLength: b.BitLength}, nil
}

func octetsOf(v reflect.Value, t *Type, c Converter) ([]byte, error) {
	oc, ok := c.(OctetStringConverter)
	if !ok {
		return nil, abstract(c, t)
	}
	p := oc.Octets(v)
	if t.Kind == KindOctetString {
		if err := checkSize(t, len(p)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func oidOf(v reflect.Value, t *Type, c Converter) ([]byte, error) {
	oc, ok := c.(ObjectIDConverter)
	if !ok {
		return nil, abstract(c, t)
	}
	p, err := tlv.AppendOID(nil, oc.Arcs(v), t.Kind == KindRelativeOID)
	return p, classify(err, ErrInvalidInteger)
}

func stringOf(v reflect.Value, t *Type, c Converter) (string, error) {
	sc, ok := c.(StringConverter)
	if !ok {
		return "", abstract(c, t)
	}
	s := sc.String(v)
	return s, checkString(t, s)
}

func checkSize(t *Type, n int) error {
	if !t.Size.Extensible && !t.Size.Contains(int64(n)) {
		return errorf(ErrInvalidSize, "%v: size %d, expected %v", t, n, t.Size)
	}
	return nil
}

func encodeCompositeBER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	cc, ok := c.(CompositeConverter)
	if !ok {
		return abstract(c, t)
	}
	if cc.NumMembers() != len(t.Components) {
		return errorf(ErrInvalidEncodeRule, "%v has %d components, converter has %d members", t, len(t.Components), cc.NumMembers())
	}
	order := make([]int, len(t.Components))
	for i := range order {
		order[i] = i
	}
	if t.Kind == KindSet && buf.rules.Canonical() {
		order = t.canonicalOrder(order)
	}
	for _, i := range order {
		comp, m := t.Components[i], cc.Member(i)
		loc := m.Locate(v)
		if !present(loc) {
			if comp.Optional || comp.Default != nil || comp.Extension {
				continue
			}
			return errorf(ErrMissingComponent, "%s in %v", comp.Name, t)
		}
		if buf.rules.Canonical() {
			skip, err := omitted(loc, comp, m.Converter)
			if err != nil {
				return err
			}
			if skip {
				continue
			}
		}
		var err error
		if comp.Type.Kind == KindOpen {
			err = encodeOpenBER(buf, v, loc, t, cc, comp.Type, m.Converter)
		} else {
			err = encodeBER(buf, loc, comp.Type, m.Converter)
		}
		if err != nil {
			return inMember(err, comp.Name)
		}
	}
	return nil
}

func encodeOpenBER(buf *Buffer, parent, slot reflect.Value, pt *Type, pc CompositeConverter, ot *Type, c Converter) error {
	loc, at, ac, err := openValue(parent, slot, pt, pc, ot, c)
	if err != nil {
		return err
	}
	if ot.Tag == nil {
		return encodeBER(buf, loc, at, ac)
	}
	return wrapBER(buf, *ot.Tag, true, func() error {
		return encodeBER(buf, loc, at, ac)
	})
}

func encodeChoiceBER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	ch, ok := c.(ChoiceConverter)
	if !ok {
		return abstract(c, t)
	}
	i := ch.Index(v)
	switch {
	case i < 0:
		return errorf(ErrMissingComponent, "no alternative of %v is selected", t)
	case i >= len(t.Components):
		return errorf(ErrInvalidIndex, "alternative %d of %v", i, t)
	}
	alt := ch.Alternative(i)
	return inMember(encodeBER(buf, alt.Locate(v), t.Components[i].Type, alt.Converter), t.Components[i].Name)
}

func encodeListBER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	lc, ok := c.(ListConverter)
	if !ok {
		return abstract(c, t)
	}
	n := lc.Len(v)
	if err := checkSize(t, n); err != nil {
		return err
	}
	elem := lc.Element()
	start := buf.pos
	ends := make([]int, n)
	for i := 0; i < n; i++ {
		loc := elem.Locate(lc.At(v, i))
		if !present(loc) {
			return errorf(ErrNullPointer, "%v: element %d is nil", t, i)
		}
		if err := encodeBER(buf, loc, t.Element, elem.Converter); err != nil {
			return inMember(err, "["+strconv.Itoa(i)+"]")
		}
		ends[i] = buf.pos
	}
	if t.Kind == KindSetOf && buf.rules.Canonical() && n > 1 {
		sortEncodings(buf.data[start:buf.pos], start, ends)
	}
	return nil
}

// sortEncodings reorders the consecutive encodings in p, which end at the
// buffer offsets ends, into ascending octet order, X.690 11.6.
func sortEncodings(p []byte, start int, ends []int) {
	segs := make([][]byte, len(ends))
	from := start
	for i, end := range ends {
		segs[i] = append([]byte(nil), p[from-start:end-start]...)
		from = end
	}
	sort.SliceStable(segs, func(i, j int) bool {
		return bytes.Compare(segs[i], segs[j]) < 0
	})
	p = p[:0]
	for _, s := range segs {
		p = append(p, s...)
	}
}

// readHeader reads identifier and length octets.  Indefinite lengths are
// not supported.
func readHeader(buf *Buffer) (tlv.Header, error) {
	h, err := tlv.ReadHeader(buf)
	if err != nil {
		if merry.Is(err, tlv.ErrHeaderTruncated) {
			return h, errorf(ErrBufferUnderflow, "header truncated")
		}
		return h, classify(err, ErrInvalidTag)
	}
	if h.Length == tlv.LengthIndefinite {
		return h, errorf(ErrInvalidLength, "indefinite length of %v", h.Tag)
	}
	return h, nil
}

func peekTag(buf *Buffer) (tlv.Tag, error) {
	pos := buf.pos
	h, err := tlv.ReadHeader(buf)
	buf.pos = pos
	if err != nil {
		if merry.Is(err, tlv.ErrHeaderTruncated) {
			return tlv.Tag{}, errorf(ErrBufferUnderflow, "header truncated")
		}
		return tlv.Tag{}, classify(err, ErrInvalidTag)
	}
	return h.Tag, nil
}

// readTLV reads a header with tag, and runs contents, which must consume
// exactly the header's length.
func readTLV(buf *Buffer, tag tlv.Tag, contents func(h tlv.Header, end int) error) error {
	h, err := readHeader(buf)
	if err != nil {
		return err
	}
	if h.Tag != tag {
		return errorf(ErrInvalidTag, "expected %v, found %v", tag, h.Tag)
	}
	end := buf.pos + h.Length
	if err := contents(h, end); err != nil {
		return err
	}
	if buf.pos != end {
		return errorf(ErrInvalidLength, "%v: contents end at %d, not %d", tag, buf.pos, end)
	}
	return nil
}

func skipTLV(buf *Buffer) error {
	h, err := readHeader(buf)
	if err != nil {
		return err
	}
	return buf.Skip(h.Length)
}

func decodeBER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	if err := checkNative(v, t, c); err != nil {
		return err
	}
	switch t.Kind {
	case KindOpen:
		return errorf(ErrNoMatchInfoObj, "open type %v outside a SEQUENCE or SET", t)
	case KindChoice:
		if t.Tag == nil {
			return decodeChoiceBER(buf, v, t, c)
		}
		return readTLV(buf, *t.Tag, func(tlv.Header, int) error {
			return decodeChoiceBER(buf, v, t, c)
		})
	}
	tag, _ := t.innerTag()
	body := func() error {
		return readTLV(buf, tag, func(h tlv.Header, end int) error {
			return decodeContentBER(buf, v, t, c, h, end)
		})
	}
	if t.Tag != nil && t.Explicit {
		return readTLV(buf, *t.Tag, func(tlv.Header, int) error {
			return body()
		})
	}
	return body()
}

// readContents returns a copy of the contents of a string type, joining
// the segments of a constructed encoding.  For bit strings the joined
// result keeps the leading unused bits octet of the last segment.
func readContents(buf *Buffer, t *Type, h tlv.Header, end int) ([]byte, error) {
	if !h.Constructed {
		p, err := buf.ReadOctets(h.Length)
		return append([]byte(nil), p...), err
	}
	if buf.rules == DER {
		return nil, errorf(ErrInvalidTag, "constructed %v not allowed in DER", t.Kind)
	}
	// character strings are segmented as OCTET STRING, X.690 8.23.5
	segTag := tlv.Universal(tlv.UniversalOctetString)
	if t.Kind == KindBitString {
		segTag = tlv.Universal(tlv.UniversalBitString)
	}
	var out []byte
	unused := byte(0)
	for buf.pos < end {
		err := readTLV(buf, segTag, func(sh tlv.Header, send int) error {
			p, err := readContents(buf, t, sh, send)
			if err != nil {
				return err
			}
			if t.Kind == KindBitString {
				if len(p) == 0 || unused != 0 {
					return errorf(ErrInvalidLength, "bad bit string segment")
				}
				unused, p = p[0], p[1:]
			}
			out = append(out, p...)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if t.Kind == KindBitString {
		out = append([]byte{unused}, out...)
	}
	return out, nil
}

func decodeContentBER(buf *Buffer, v reflect.Value, t *Type, c Converter, h tlv.Header, end int) error {
	if h.Constructed != t.Kind.constructed() {
		// strings may arrive in segments
		segmented := h.Constructed && (t.Kind.IsString() || t.Kind == KindBitString || t.Kind == KindOctetString)
		if !segmented {
			return errorf(ErrInvalidTag, "%v: unexpected constructed flag %v", t, h.Constructed)
		}
	}
	switch t.Kind {
	case KindBoolean:
		bc, ok := c.(BooleanConverter)
		if !ok {
			return abstract(c, t)
		}
		if h.Length != 1 {
			return errorf(ErrInvalidLength, "BOOLEAN of %d octets", h.Length)
		}
		b, err := buf.ReadByte()
		if err != nil {
			return err
		}
		bc.SetBool(v, b != 0)
		return nil
	case KindNull:
		if h.Length != 0 {
			return errorf(ErrInvalidLength, "NULL of %d octets", h.Length)
		}
		if nc, ok := c.(NullConverter); ok {
			nc.SetNull(v)
		}
		return nil
	case KindInteger:
		ic, ok := c.(IntegerConverter)
		if !ok {
			return abstract(c, t)
		}
		return ic.DecodeBER(buf, v, t, h.Length)
	case KindEnumerated:
		p, err := buf.ReadOctets(h.Length)
		if err != nil {
			return err
		}
		if len(p) == 0 || buf.rules.Canonical() && !tlv.Minimal(p) {
			return errorf(ErrInvalidEnum, "malformed ENUMERATED contents %x", p)
		}
		e, ok := tlv.ParseInt64(p)
		if !ok {
			return errorf(ErrInvalidEnum, "enumerated value overflows int64")
		}
		return setEnum(v, t, c, e)
	case KindReal:
		rc, ok := c.(RealConverter)
		if !ok {
			return abstract(c, t)
		}
		p, err := buf.ReadOctets(h.Length)
		if err != nil {
			return err
		}
		f, err := parseReal(p)
		if err != nil {
			return err
		}
		if err := checkReal(t, f); err != nil {
			return err
		}
		return rc.SetFloat(v, f)
	case KindBitString:
		p, err := readContents(buf, t, h, end)
		if err != nil {
			return err
		}
		return setBits(v, t, c, p)
	case KindOctetString, KindCharacterString:
		oc, ok := c.(OctetStringConverter)
		if !ok {
			return abstract(c, t)
		}
		var p []byte
		var err error
		if t.Kind == KindCharacterString {
			p, err = buf.ReadOctets(h.Length)
		} else {
			p, err = readContents(buf, t, h, end)
		}
		if err != nil {
			return err
		}
		if t.Kind == KindOctetString {
			if err := checkSize(t, len(p)); err != nil {
				return err
			}
		}
		oc.SetOctets(v, p)
		return nil
	case KindObjectIdentifier, KindRelativeOID:
		p, err := buf.ReadOctets(h.Length)
		if err != nil {
			return err
		}
		return setOID(v, t, c, p)
	case KindGeneralizedTime, KindUTCTime:
		p, err := readContents(buf, t, h, end)
		if err != nil {
			return err
		}
		return setTimeText(v, t, c, string(p))
	case KindSequence:
		return decodeSequenceBER(buf, v, t, c, end)
	case KindSet:
		return decodeSetBER(buf, v, t, c, end)
	case KindSequenceOf, KindSetOf:
		return decodeListBER(buf, v, t, c, end)
	}
	if t.Kind.IsString() {
		p, err := readContents(buf, t, h, end)
		if err != nil {
			return err
		}
		return setChars(v, t, c, p)
	}
	return errorf(ErrInvalidEncodeRule, "unknown kind %v", t.Kind)
}

// The setters below check a decoded primitive against the type's
// constraints and store it through its converter.

func setEnum(v reflect.Value, t *Type, c Converter, e int64) error {
	ec, ok := c.(EnumeratedConverter)
	if !ok {
		return abstract(c, t)
	}
	if _, it := t.ItemByValue(e); it == nil && !t.Extensible {
		return errorf(ErrInvalidEnum, "%d is not an item of %v", e, t)
	}
	return ec.SetEnum(v, t, e)
}

// setBits stores BIT STRING contents: the unused bits octet, then the bits.
func setBits(v reflect.Value, t *Type, c Converter, p []byte) error {
	bc, ok := c.(BitStringConverter)
	if !ok {
		return abstract(c, t)
	}
	if len(p) == 0 || p[0] > 7 || len(p) == 1 && p[0] != 0 {
		return errorf(ErrInvalidLength, "malformed BIT STRING contents")
	}
	b := BitString{Bytes: p[1:], BitLength: (len(p)-1)*8 - int(p[0])}
	if err := checkSize(t, b.BitLength); err != nil {
		return err
	}
	bc.SetBits(v, b)
	return nil
}

func setOID(v reflect.Value, t *Type, c Converter, p []byte) error {
	oc, ok := c.(ObjectIDConverter)
	if !ok {
		return abstract(c, t)
	}
	arcs, err := tlv.ParseOID(p, t.Kind == KindRelativeOID)
	if err != nil {
		return classify(err, ErrInvalidInteger)
	}
	return oc.SetArcs(v, arcs)
}

func setTimeText(v reflect.Value, t *Type, c Converter, s string) error {
	tm, err := parseTime(t.Kind, s)
	if err != nil {
		return err
	}
	return setTime(v, t, c, tm, s)
}

func setChars(v reflect.Value, t *Type, c Converter, p []byte) error {
	sc, ok := c.(StringConverter)
	if !ok {
		return abstract(c, t)
	}
	s, err := decodeChars(t.Kind, p)
	if err != nil {
		return err
	}
	if err := checkString(t, s); err != nil {
		return err
	}
	return sc.SetString(v, s)
}

func compositeOf(c Converter, t *Type) (CompositeConverter, error) {
	cc, ok := c.(CompositeConverter)
	if !ok {
		return nil, abstract(c, t)
	}
	if cc.NumMembers() != len(t.Components) {
		return nil, errorf(ErrInvalidEncodeRule, "%v has %d components, converter has %d members", t, len(t.Components), cc.NumMembers())
	}
	return cc, nil
}

func decodeMemberBER(buf *Buffer, v reflect.Value, t *Type, cc CompositeConverter, i int) error {
	comp, m := t.Components[i], cc.Member(i)
	loc, err := m.Realize(v)
	if err == nil {
		if comp.Type.Kind == KindOpen {
			err = decodeOpenBER(buf, v, loc, t, cc, comp.Type, m.Converter)
		} else {
			err = decodeBER(buf, loc, comp.Type, m.Converter)
		}
	}
	if err != nil {
		return inMember(err, comp.Name)
	}
	return cc.Done(v, i, true)
}

func decodeOpenBER(buf *Buffer, parent, slot reflect.Value, pt *Type, pc CompositeConverter, ot *Type, c Converter) error {
	loc, at, ac, err := openStorage(parent, slot, pt, pc, ot, c)
	if err != nil {
		return err
	}
	if ot.Tag == nil {
		return decodeBER(buf, loc, at, ac)
	}
	return readTLV(buf, *ot.Tag, func(tlv.Header, int) error {
		return decodeBER(buf, loc, at, ac)
	})
}

// skipUnknown skips an element no component matches, if the type is
// extensible.
func skipUnknown(buf *Buffer, t *Type, tag tlv.Tag) error {
	if !t.Extensible {
		return errorf(ErrExtraComponent, "%v in %v", tag, t)
	}
	log.Debug("skipping unknown extension", "type", t.String(), "tag", tag.String())
	return skipTLV(buf)
}

func decodeSequenceBER(buf *Buffer, v reflect.Value, t *Type, c Converter, end int) error {
	cc, err := compositeOf(c, t)
	if err != nil {
		return err
	}
	seen := make([]bool, len(t.Components))
	next := 0
	for buf.pos < end {
		tag, err := peekTag(buf)
		if err != nil {
			return err
		}
		i := next
		for ; i < len(t.Components); i++ {
			comp := t.Components[i]
			if comp.Type.matches(tag) {
				break
			}
			if !comp.Optional && comp.Default == nil && !comp.Extension {
				return errorf(ErrMissingComponent, "%s in %v, found %v", comp.Name, t, tag)
			}
		}
		if i == len(t.Components) {
			if err := skipUnknown(buf, t, tag); err != nil {
				return err
			}
			next = i
			continue
		}
		if err := decodeMemberBER(buf, v, t, cc, i); err != nil {
			return err
		}
		seen[i] = true
		next = i + 1
	}
	for i := range t.Components {
		if !seen[i] {
			if err := absent(v, t, cc, i); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeSetBER accepts the components of a SET in any order.  Open type
// members arriving before their discriminant are decoded at the end.
func decodeSetBER(buf *Buffer, v reflect.Value, t *Type, c Converter, end int) error {
	cc, err := compositeOf(c, t)
	if err != nil {
		return err
	}
	seen := make([]bool, len(t.Components))
	type deferred struct {
		i int
		p []byte
	}
	var later []deferred
	for buf.pos < end {
		tag, err := peekTag(buf)
		if err != nil {
			return err
		}
		i := -1
		dup := false
		for j, comp := range t.Components {
			if comp.Type.matches(tag) {
				if seen[j] {
					dup = true
					continue
				}
				i = j
				break
			}
		}
		switch {
		case i < 0 && dup:
			return errorf(ErrExtraComponent, "duplicate %v in %v", tag, t)
		case i < 0:
			if err := skipUnknown(buf, t, tag); err != nil {
				return err
			}
			continue
		}
		seen[i] = true
		if ot := t.Components[i].Type; ot.Kind == KindOpen {
			if ri, _ := t.Component(ot.Relation); ri >= 0 && !seen[ri] {
				start := buf.pos
				if err := skipTLV(buf); err != nil {
					return err
				}
				later = append(later, deferred{i: i, p: append([]byte(nil), buf.data[start:buf.pos]...)})
				continue
			}
		}
		if err := decodeMemberBER(buf, v, t, cc, i); err != nil {
			return err
		}
	}
	for _, d := range later {
		sub, err := Wrap(d.p, buf.rules)
		if err != nil {
			return err
		}
		if err := decodeMemberBER(sub, v, t, cc, d.i); err != nil {
			return err
		}
	}
	for i := range t.Components {
		if !seen[i] {
			if err := absent(v, t, cc, i); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeChoiceBER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	ch, ok := c.(ChoiceConverter)
	if !ok {
		return abstract(c, t)
	}
	tag, err := peekTag(buf)
	if err != nil {
		return err
	}
	for i, comp := range t.Components {
		if !comp.Type.matches(tag) {
			continue
		}
		if i >= ch.NumAlternatives() {
			return errorf(ErrInvalidIndex, "alternative %d of %v", i, t)
		}
		return selectAlternative(v, t, ch, i, func(loc reflect.Value, alt *MemberDescriptor) error {
			return decodeBER(buf, loc, comp.Type, alt.Converter)
		})
	}
	return errorf(ErrInvalidTag, "%v matches no alternative of %v", tag, t)
}

// selectAlternative releases every alternative but i, then realizes i
// and fills it.
func selectAlternative(v reflect.Value, t *Type, ch ChoiceConverter, i int, fill func(loc reflect.Value, alt *MemberDescriptor) error) error {
	for j := 0; j < ch.NumAlternatives(); j++ {
		if j != i && j < len(t.Components) {
			discard(v, t.Components[j].Type, ch.Alternative(j))
		}
	}
	alt := ch.Alternative(i)
	loc, err := alt.Realize(v)
	if err == nil {
		err = fill(loc, alt)
	}
	return inMember(err, t.Components[i].Name)
}

func decodeListBER(buf *Buffer, v reflect.Value, t *Type, c Converter, end int) error {
	lc, ok := c.(ListConverter)
	if !ok {
		return abstract(c, t)
	}
	lc.Clear(v)
	for i := 0; buf.pos < end; i++ {
		loc, err := lc.Add(v)
		if err == nil {
			err = decodeBER(buf, loc, t.Element, lc.Element().Converter)
		}
		if err != nil {
			return inMember(err, "["+strconv.Itoa(i)+"]")
		}
		if err := lc.Done(v, i); err != nil {
			return err
		}
	}
	return checkSize(t, lc.Len(v))
}
