package asnrt

import (
	"reflect"
	"strconv"
)

// Packed encoding rules, X.691.  Tags play no part in packed encodings,
// except for ordering SET components and CHOICE alternatives.

func encodePER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	if err := checkNative(v, t, c); err != nil {
		return err
	}
	switch t.Kind {
	case KindBoolean:
		bc, ok := c.(BooleanConverter)
		if !ok {
			return abstract(c, t)
		}
		return buf.writeBool(bc.Bool(v))
	case KindNull:
		return nil
	case KindInteger:
		ic, ok := c.(IntegerConverter)
		if !ok {
			return abstract(c, t)
		}
		return ic.EncodePER(buf, v, t)
	case KindEnumerated:
		return encodeEnumPER(buf, v, t, c)
	case KindReal:
		f, err := realOf(v, t, c)
		if err != nil {
			return err
		}
		return buf.writeOctetChunks(appendReal(nil, f))
	case KindBitString:
		b, err := bitsOf(v, t, c)
		if err != nil {
			return err
		}
		align := !(t.Size.IsFixed() && t.Size.Upper <= 16)
		return buf.writeSized(b.BitLength, t.Size, func(from, n int) error {
			if n == 0 {
				return nil
			}
			if align {
				if err := buf.alignWrite(); err != nil {
					return err
				}
			}
			for i := from; i < from+n; i++ {
				if err := buf.WriteBits(uint64(b.At(i)), 1); err != nil {
					return err
				}
			}
			return nil
		})
	case KindOctetString:
		p, err := octetsOf(v, t, c)
		if err != nil {
			return err
		}
		align := !(t.Size.IsFixed() && t.Size.Upper <= 2)
		return buf.writeSized(len(p), t.Size, func(from, n int) error {
			if n == 0 {
				return nil
			}
			if align {
				if err := buf.alignWrite(); err != nil {
					return err
				}
			}
			_, err := buf.Write(p[from : from+n])
			return err
		})
	case KindCharacterString:
		p, err := octetsOf(v, t, c)
		if err != nil {
			return err
		}
		return buf.writeOctetChunks(p)
	case KindObjectIdentifier, KindRelativeOID:
		p, err := oidOf(v, t, c)
		if err != nil {
			return err
		}
		return buf.writeOctetChunks(p)
	case KindGeneralizedTime, KindUTCTime:
		s, err := getTime(v, t, c)
		if err != nil {
			return err
		}
		return encodeCharsPER(buf, s, t, Range{})
	case KindSequence, KindSet:
		return encodeCompositePER(buf, v, t, c)
	case KindSequenceOf, KindSetOf:
		return encodeListPER(buf, v, t, c)
	case KindChoice:
		return encodeChoicePER(buf, v, t, c)
	case KindOpen:
		return errorf(ErrNoMatchInfoObj, "open type %v outside a SEQUENCE or SET", t)
	}
	if t.Kind.IsString() {
		s, err := stringOf(v, t, c)
		if err != nil {
			return err
		}
		if knownMultiplier(t.Kind) {
			return encodeCharsPER(buf, s, t, t.Size)
		}
		p, err := encodeChars(t.Kind, s)
		if err != nil {
			return err
		}
		return buf.writeOctetChunks(p)
	}
	return errorf(ErrInvalidEncodeRule, "unknown kind %v", t.Kind)
}

// charsAligned reports whether the characters of a known-multiplier string
// are octet aligned, X.691 30.5.7.
func charsAligned(buf *Buffer, a *alphabet, size Range) bool {
	return buf.rules.Aligned() && !(size.Constrained() && size.Upper*int64(a.bits) <= 16)
}

func encodeCharsPER(buf *Buffer, s string, t *Type, size Range) error {
	a := newAlphabet(t, buf.rules.Aligned())
	runes := []rune(s)
	align := charsAligned(buf, a, size)
	return buf.writeSized(len(runes), size, func(from, n int) error {
		if n == 0 {
			return nil
		}
		if align {
			if err := buf.alignWrite(); err != nil {
				return err
			}
		}
		for _, r := range runes[from : from+n] {
			code, ok := a.code(r)
			if !ok {
				return errorf(ErrNotPermittedAlphabet, "%v: character %q", t, r)
			}
			if err := buf.WriteBits(code, a.bits); err != nil {
				return err
			}
		}
		return nil
	})
}

func decodeCharsPER(buf *Buffer, t *Type, size Range) (string, error) {
	a := newAlphabet(t, buf.rules.Aligned())
	align := charsAligned(buf, a, size)
	var runes []rune
	_, err := buf.readSized(size, func(n int) error {
		if n == 0 {
			return nil
		}
		if align {
			if err := buf.alignRead(); err != nil {
				return err
			}
		}
		for i := 0; i < n; i++ {
			code, err := buf.ReadBits(a.bits)
			if err != nil {
				return err
			}
			r, ok := a.char(code)
			if !ok {
				return errorf(ErrNotPermittedAlphabet, "%v: character code %d", t, code)
			}
			runes = append(runes, r)
		}
		return nil
	})
	return string(runes), err
}

func encodeEnumPER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	e, err := enumOf(v, t, c)
	if err != nil {
		return err
	}
	root, ext := t.rootItems()
	for k, i := range root {
		if t.Items[i].Value == e {
			if t.Extensible {
				if err := buf.writeBool(false); err != nil {
					return err
				}
			}
			return buf.writeConstrainedInt(int64(k), 0, int64(len(root)-1))
		}
	}
	for k, i := range ext {
		if t.Items[i].Value == e {
			if !t.Extensible {
				break
			}
			if err := buf.writeBool(true); err != nil {
				return err
			}
			return buf.writeNormallySmall(uint64(k))
		}
	}
	return errorf(ErrInvalidEnum, "%d is not an item of %v", e, t)
}

func decodeEnumPER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	root, ext := t.rootItems()
	isExt := false
	if t.Extensible {
		var err error
		if isExt, err = buf.readBool(); err != nil {
			return err
		}
	}
	if isExt {
		k, err := buf.readNormallySmall()
		if err != nil {
			return err
		}
		if k >= uint64(len(ext)) {
			return errorf(ErrInvalidEnum, "unknown extension item %d of %v", k, t)
		}
		return setEnum(v, t, c, t.Items[ext[k]].Value)
	}
	if len(root) == 0 {
		return errorf(ErrInvalidEnum, "%v has no items", t)
	}
	k, err := buf.readConstrainedInt(0, int64(len(root)-1))
	if err != nil {
		return classify(err, ErrInvalidEnum)
	}
	return setEnum(v, t, c, t.Items[root[k]].Value)
}

// perOrder returns the root components in encoding order, and the
// extension additions.
func perOrder(t *Type) (root, ext []int) {
	root, ext = t.split()
	if t.Kind == KindSet {
		root = t.canonicalOrder(root)
	}
	return root, ext
}

func encodeCompositePER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	cc, err := compositeOf(c, t)
	if err != nil {
		return err
	}
	root, ext := perOrder(t)
	locs := make([]reflect.Value, len(t.Components))
	send := make([]bool, len(t.Components))
	for i, comp := range t.Components {
		m := cc.Member(i)
		locs[i] = m.Locate(v)
		if !present(locs[i]) {
			if !comp.Optional && comp.Default == nil && !comp.Extension {
				return errorf(ErrMissingComponent, "%s in %v", comp.Name, t)
			}
			continue
		}
		skip, err := omitted(locs[i], comp, m.Converter)
		if err != nil {
			return err
		}
		send[i] = !skip
	}
	extPresent := false
	for _, i := range ext {
		extPresent = extPresent || send[i]
	}
	if t.Extensible {
		if err := buf.writeBool(extPresent); err != nil {
			return err
		}
	}
	for _, i := range root {
		if comp := t.Components[i]; comp.Optional || comp.Default != nil {
			if err := buf.writeBool(send[i]); err != nil {
				return err
			}
		}
	}
	member := func(b *Buffer, i int) error {
		comp, m := t.Components[i], cc.Member(i)
		var err error
		if comp.Type.Kind == KindOpen {
			err = encodeOpenPER(b, v, locs[i], t, cc, comp.Type, m.Converter)
		} else {
			err = encodePER(b, locs[i], comp.Type, m.Converter)
		}
		return inMember(err, comp.Name)
	}
	for _, i := range root {
		if send[i] {
			if err := member(buf, i); err != nil {
				return err
			}
		}
	}
	if !extPresent {
		return nil
	}
	if err := buf.writeNormallySmall(uint64(len(ext) - 1)); err != nil {
		return err
	}
	for _, i := range ext {
		if err := buf.writeBool(send[i]); err != nil {
			return err
		}
	}
	for _, i := range ext {
		if !send[i] {
			continue
		}
		i := i
		if err := buf.writeOpen(func(b *Buffer) error { return member(b, i) }); err != nil {
			return err
		}
	}
	return nil
}

// writeOpen writes an open type field: the complete encoding produced by
// encode, as a length prefixed octet string, X.691 11.2.
func (b *Buffer) writeOpen(encode func(b *Buffer) error) error {
	tmp, err := Allocate(16, true, b.rules)
	if err != nil {
		return err
	}
	if err := encode(tmp); err != nil {
		return err
	}
	if tmp.pos == 0 {
		err = tmp.WriteBits(0, 8)
	} else {
		err = tmp.Pad()
	}
	if err != nil {
		return err
	}
	return b.writeOctetChunks(tmp.Bytes())
}

func (b *Buffer) readOpen(decode func(b *Buffer) error) error {
	p, err := b.readOctetChunks()
	if err != nil {
		return err
	}
	tmp, err := Wrap(p, b.rules)
	if err != nil {
		return err
	}
	return decode(tmp)
}

func encodeOpenPER(buf *Buffer, parent, slot reflect.Value, pt *Type, pc CompositeConverter, ot *Type, c Converter) error {
	loc, at, ac, err := openValue(parent, slot, pt, pc, ot, c)
	if err != nil {
		return err
	}
	return buf.writeOpen(func(b *Buffer) error {
		return encodePER(b, loc, at, ac)
	})
}

func decodeOpenPER(buf *Buffer, parent, slot reflect.Value, pt *Type, pc CompositeConverter, ot *Type, c Converter) error {
	loc, at, ac, err := openStorage(parent, slot, pt, pc, ot, c)
	if err != nil {
		return err
	}
	return buf.readOpen(func(b *Buffer) error {
		return decodePER(b, loc, at, ac)
	})
}

func encodeChoicePER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	ch, ok := c.(ChoiceConverter)
	if !ok {
		return abstract(c, t)
	}
	i := ch.Index(v)
	if i < 0 {
		return errorf(ErrMissingComponent, "no alternative of %v is selected", t)
	}
	root, ext := t.split()
	root, ext = t.canonicalOrder(root), t.canonicalOrder(ext)
	alt := ch.Alternative(i)
	encodeAlt := func(b *Buffer) error {
		return inMember(encodePER(b, alt.Locate(v), t.Components[i].Type, alt.Converter), t.Components[i].Name)
	}
	for k, j := range root {
		if j == i {
			if t.Extensible {
				if err := buf.writeBool(false); err != nil {
					return err
				}
			}
			if err := buf.writeConstrainedInt(int64(k), 0, int64(len(root)-1)); err != nil {
				return err
			}
			return encodeAlt(buf)
		}
	}
	for k, j := range ext {
		if j == i && t.Extensible {
			if err := buf.writeBool(true); err != nil {
				return err
			}
			if err := buf.writeNormallySmall(uint64(k)); err != nil {
				return err
			}
			return buf.writeOpen(encodeAlt)
		}
	}
	return errorf(ErrInvalidIndex, "alternative %d of %v", i, t)
}

func encodeListPER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	lc, ok := c.(ListConverter)
	if !ok {
		return abstract(c, t)
	}
	n := lc.Len(v)
	elem := lc.Element()
	return buf.writeSized(n, t.Size, func(from, count int) error {
		for i := from; i < from+count; i++ {
			loc := elem.Locate(lc.At(v, i))
			if !present(loc) {
				return errorf(ErrNullPointer, "%v: element %d is nil", t, i)
			}
			if err := encodePER(buf, loc, t.Element, elem.Converter); err != nil {
				return inMember(err, "["+strconv.Itoa(i)+"]")
			}
		}
		return nil
	})
}

func decodePER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	if err := checkNative(v, t, c); err != nil {
		return err
	}
	switch t.Kind {
	case KindBoolean:
		bc, ok := c.(BooleanConverter)
		if !ok {
			return abstract(c, t)
		}
		b, err := buf.readBool()
		if err != nil {
			return err
		}
		bc.SetBool(v, b)
		return nil
	case KindNull:
		if nc, ok := c.(NullConverter); ok {
			nc.SetNull(v)
		}
		return nil
	case KindInteger:
		ic, ok := c.(IntegerConverter)
		if !ok {
			return abstract(c, t)
		}
		return ic.DecodePER(buf, v, t)
	case KindEnumerated:
		return decodeEnumPER(buf, v, t, c)
	case KindReal:
		rc, ok := c.(RealConverter)
		if !ok {
			return abstract(c, t)
		}
		p, err := buf.readOctetChunks()
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
		align := !(t.Size.IsFixed() && t.Size.Upper <= 16)
		var bits []int
		_, err := buf.readSized(t.Size, func(n int) error {
			if n == 0 {
				return nil
			}
			if align {
				if err := buf.alignRead(); err != nil {
					return err
				}
			}
			for i := 0; i < n; i++ {
				bit, err := buf.ReadBits(1)
				if err != nil {
					return err
				}
				bits = append(bits, int(bit))
			}
			return nil
		})
		if err != nil {
			return err
		}
		b := NewBitString(bits...)
		return setBits(v, t, c, append([]byte{byte(len(b.Bytes)*8 - b.BitLength)}, b.Bytes...))
	case KindOctetString:
		oc, ok := c.(OctetStringConverter)
		if !ok {
			return abstract(c, t)
		}
		align := !(t.Size.IsFixed() && t.Size.Upper <= 2)
		var p []byte
		_, err := buf.readSized(t.Size, func(n int) error {
			if n == 0 {
				return nil
			}
			if align {
				if err := buf.alignRead(); err != nil {
					return err
				}
			}
			q, err := buf.ReadOctets(n)
			p = append(p, q...)
			return err
		})
		if err != nil {
			return err
		}
		if p == nil {
			p = []byte{}
		}
		oc.SetOctets(v, p)
		return nil
	case KindCharacterString:
		oc, ok := c.(OctetStringConverter)
		if !ok {
			return abstract(c, t)
		}
		p, err := buf.readOctetChunks()
		if err != nil {
			return err
		}
		oc.SetOctets(v, p)
		return nil
	case KindObjectIdentifier, KindRelativeOID:
		p, err := buf.readOctetChunks()
		if err != nil {
			return err
		}
		return setOID(v, t, c, p)
	case KindGeneralizedTime, KindUTCTime:
		s, err := decodeCharsPER(buf, t, Range{})
		if err != nil {
			return err
		}
		return setTimeText(v, t, c, s)
	case KindSequence, KindSet:
		return decodeCompositePER(buf, v, t, c)
	case KindSequenceOf, KindSetOf:
		return decodeListPER(buf, v, t, c)
	case KindChoice:
		return decodeChoicePER(buf, v, t, c)
	case KindOpen:
		return errorf(ErrNoMatchInfoObj, "open type %v outside a SEQUENCE or SET", t)
	}
	if t.Kind.IsString() {
		sc, ok := c.(StringConverter)
		if !ok {
			return abstract(c, t)
		}
		if knownMultiplier(t.Kind) {
			s, err := decodeCharsPER(buf, t, t.Size)
			if err != nil {
				return err
			}
			if err := checkString(t, s); err != nil {
				return err
			}
			return sc.SetString(v, s)
		}
		p, err := buf.readOctetChunks()
		if err != nil {
			return err
		}
		return setChars(v, t, c, p)
	}
	return errorf(ErrInvalidEncodeRule, "unknown kind %v", t.Kind)
}

func decodeCompositePER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	cc, err := compositeOf(c, t)
	if err != nil {
		return err
	}
	root, ext := perOrder(t)
	extPresent := false
	if t.Extensible {
		if extPresent, err = buf.readBool(); err != nil {
			return err
		}
	}
	got := make([]bool, len(t.Components))
	for _, i := range root {
		if comp := t.Components[i]; comp.Optional || comp.Default != nil {
			if got[i], err = buf.readBool(); err != nil {
				return err
			}
		} else {
			got[i] = true
		}
	}
	member := func(b *Buffer, i int) error {
		comp, m := t.Components[i], cc.Member(i)
		loc, err := m.Realize(v)
		if err == nil {
			if comp.Type.Kind == KindOpen {
				err = decodeOpenPER(b, v, loc, t, cc, comp.Type, m.Converter)
			} else {
				err = decodePER(b, loc, comp.Type, m.Converter)
			}
		}
		if err != nil {
			return inMember(err, comp.Name)
		}
		return cc.Done(v, i, true)
	}
	for _, i := range root {
		if !got[i] {
			if err := absent(v, t, cc, i); err != nil {
				return err
			}
			continue
		}
		if err := member(buf, i); err != nil {
			return err
		}
	}
	if extPresent {
		n, err := buf.readNormallySmall()
		if err != nil {
			return err
		}
		// one bitmap bit per addition must follow
		if n >= maxExtensionAdditions {
			return errorf(ErrInvalidLength, "%d extension additions in %v", n+1, t)
		}
		if err := buf.fill(int(n) + 1); err != nil {
			return errorf(ErrInvalidLength, "extension bitmap of %d bits truncated in %v", n+1, t)
		}
		bits := make([]bool, n+1)
		for k := range bits {
			if bits[k], err = buf.readBool(); err != nil {
				return err
			}
		}
		for k, set := range bits {
			switch {
			case !set:
			case k < len(ext):
				i := ext[k]
				got[i] = true
				if err := buf.readOpen(func(b *Buffer) error { return member(b, i) }); err != nil {
					return err
				}
			default:
				log.Debug("skipping unknown extension", "type", t.String(), "index", k)
				if _, err := buf.readOctetChunks(); err != nil {
					return err
				}
			}
		}
	}
	for _, i := range ext {
		if !got[i] {
			if err := absent(v, t, cc, i); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeChoicePER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	ch, ok := c.(ChoiceConverter)
	if !ok {
		return abstract(c, t)
	}
	root, ext := t.split()
	root, ext = t.canonicalOrder(root), t.canonicalOrder(ext)
	isExt := false
	if t.Extensible {
		var err error
		if isExt, err = buf.readBool(); err != nil {
			return err
		}
	}
	decodeAlt := func(b *Buffer, i int) error {
		if i >= ch.NumAlternatives() {
			return errorf(ErrInvalidIndex, "alternative %d of %v", i, t)
		}
		return selectAlternative(v, t, ch, i, func(loc reflect.Value, alt *MemberDescriptor) error {
			return decodePER(b, loc, t.Components[i].Type, alt.Converter)
		})
	}
	if isExt {
		k, err := buf.readNormallySmall()
		if err != nil {
			return err
		}
		if k >= uint64(len(ext)) {
			return errorf(ErrInvalidIndex, "unknown extension alternative %d of %v", k, t)
		}
		return buf.readOpen(func(b *Buffer) error { return decodeAlt(b, ext[k]) })
	}
	if len(root) == 0 {
		return errorf(ErrInvalidIndex, "%v has no alternatives", t)
	}
	k, err := buf.readConstrainedInt(0, int64(len(root)-1))
	if err != nil {
		return classify(err, ErrInvalidIndex)
	}
	return decodeAlt(buf, root[k])
}

func decodeListPER(buf *Buffer, v reflect.Value, t *Type, c Converter) error {
	lc, ok := c.(ListConverter)
	if !ok {
		return abstract(c, t)
	}
	lc.Clear(v)
	i := 0
	_, err := buf.readSized(t.Size, func(n int) error {
		for end := i + n; i < end; i++ {
			loc, err := lc.Add(v)
			if err == nil {
				err = decodePER(buf, loc, t.Element, lc.Element().Converter)
			}
			if err != nil {
				return inMember(err, "["+strconv.Itoa(i)+"]")
			}
			if err := lc.Done(v, i); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}
