package asnrt

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Print writes the value v points to in ASN.1 value notation, with nested
// values indented by two spaces.
func Print(w io.Writer, v interface{}, t *Type, c Converter) error {
	val, err := pointee(v)
	if err != nil {
		return err
	}
	return PrintValue(w, val, t, c)
}

func PrintValue(w io.Writer, v reflect.Value, t *Type, c Converter) error {
	if err := checkValue(v, t, c); err != nil {
		return err
	}
	var sb strings.Builder
	if err := printValue(&sb, "", v, t, c); err != nil {
		return err
	}
	if _, err := io.WriteString(w, sb.String()); err != nil {
		return classify(err, ErrIO)
	}
	return nil
}

// Sprint renders a value like Print, returning errors inline.
func Sprint(v interface{}, t *Type, c Converter) string {
	var sb strings.Builder
	if err := Print(&sb, v, t, c); err != nil {
		return "<" + err.Error() + ">"
	}
	return sb.String()
}

func printValue(sb *strings.Builder, indent string, v reflect.Value, t *Type, c Converter) error {
	if err := checkNative(v, t, c); err != nil {
		return err
	}
	switch t.Kind {
	case KindBoolean:
		bc, ok := c.(BooleanConverter)
		if !ok {
			return abstract(c, t)
		}
		if bc.Bool(v) {
			sb.WriteString("TRUE")
		} else {
			sb.WriteString("FALSE")
		}
	case KindNull:
		sb.WriteString("NULL")
	case KindInteger:
		ic, ok := c.(IntegerConverter)
		if !ok {
			return abstract(c, t)
		}
		sb.WriteString(ic.Int(v).String())
	case KindEnumerated:
		ec, ok := c.(EnumeratedConverter)
		if !ok {
			return abstract(c, t)
		}
		e, err := ec.Enum(v, t)
		if err != nil {
			return err
		}
		if _, it := t.ItemByValue(e); it != nil {
			sb.WriteString(it.Name)
		} else {
			sb.WriteString(strconv.FormatInt(e, 10))
		}
	case KindReal:
		rc, ok := c.(RealConverter)
		if !ok {
			return abstract(c, t)
		}
		f := rc.Float(v)
		switch {
		case math.IsInf(f, 1):
			sb.WriteString("PLUS-INFINITY")
		case math.IsInf(f, -1):
			sb.WriteString("MINUS-INFINITY")
		case math.IsNaN(f):
			sb.WriteString("NOT-A-NUMBER")
		default:
			sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		}
	case KindBitString:
		bc, ok := c.(BitStringConverter)
		if !ok {
			return abstract(c, t)
		}
		fmt.Fprintf(sb, "'%s'B", bc.Bits(v))
	case KindOctetString, KindCharacterString:
		oc, ok := c.(OctetStringConverter)
		if !ok {
			return abstract(c, t)
		}
		fmt.Fprintf(sb, "'%X'H", oc.Octets(v))
	case KindObjectIdentifier, KindRelativeOID:
		oc, ok := c.(ObjectIDConverter)
		if !ok {
			return abstract(c, t)
		}
		sb.WriteString("{")
		for _, a := range oc.Arcs(v) {
			sb.WriteString(" " + a.String())
		}
		sb.WriteString(" }")
	case KindGeneralizedTime, KindUTCTime:
		s, err := getTime(v, t, c)
		if err != nil {
			return err
		}
		sb.WriteString(quote(s))
	case KindSequence, KindSet:
		return printComposite(sb, indent, v, t, c)
	case KindSequenceOf, KindSetOf:
		lc, ok := c.(ListConverter)
		if !ok {
			return abstract(c, t)
		}
		n := lc.Len(v)
		if n == 0 {
			sb.WriteString("{}")
			return nil
		}
		sb.WriteString("{\n")
		for i := 0; i < n; i++ {
			loc := lc.Element().Locate(lc.At(v, i))
			sb.WriteString(indent + "  ")
			if !present(loc) {
				sb.WriteString("<nil>")
			} else if err := printValue(sb, indent+"  ", loc, t.Element, lc.Element().Converter); err != nil {
				return err
			}
			if i < n-1 {
				sb.WriteString(",")
			}
			sb.WriteString("\n")
		}
		sb.WriteString(indent + "}")
	case KindChoice:
		ch, ok := c.(ChoiceConverter)
		if !ok {
			return abstract(c, t)
		}
		i := ch.Index(v)
		if i < 0 || i >= len(t.Components) {
			sb.WriteString("<none>")
			return nil
		}
		alt := ch.Alternative(i)
		sb.WriteString(t.Components[i].Name + " : ")
		return printValue(sb, indent, alt.Locate(v), t.Components[i].Type, alt.Converter)
	case KindOpen:
		loc, at, ac, err := openOf(v, t, c)
		if err != nil {
			return err
		}
		return printValue(sb, indent, loc, at, ac)
	default:
		sc, ok := c.(StringConverter)
		if !ok {
			return abstract(c, t)
		}
		sb.WriteString(quote(sc.String(v)))
	}
	return nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func printComposite(sb *strings.Builder, indent string, v reflect.Value, t *Type, c Converter) error {
	cc, err := compositeOf(c, t)
	if err != nil {
		return err
	}
	first := true
	for i, comp := range t.Components {
		m := cc.Member(i)
		loc := m.Locate(v)
		if !present(loc) {
			continue
		}
		if first {
			sb.WriteString("{\n")
		} else {
			sb.WriteString(",\n")
		}
		first = false
		sb.WriteString(indent + "  " + comp.Name + " ")
		if err := printValue(sb, indent+"  ", loc, comp.Type, m.Converter); err != nil {
			return inMember(err, comp.Name)
		}
	}
	if first {
		sb.WriteString("{}")
	} else {
		sb.WriteString("\n" + indent + "}")
	}
	return nil
}

// openOf finds the actual value of a populated open type slot, from the
// type of the value it holds.
func openOf(slot reflect.Value, t *Type, c Converter) (reflect.Value, *Type, Converter, error) {
	oc, ok := c.(OpenConverter)
	if !ok {
		return reflect.Value{}, nil, nil, abstract(c, t)
	}
	key, err := oc.Key(slot)
	if err != nil {
		return reflect.Value{}, nil, nil, err
	}
	at, am, err := actual(key, t, c)
	if err != nil {
		return reflect.Value{}, nil, nil, err
	}
	return am.Locate(slot), at, am.Converter, nil
}

// Equals reports whether the values a and b point to are equal as values
// of type t.
func Equals(a, b interface{}, t *Type, c Converter) bool {
	va, err := pointee(a)
	if err != nil {
		return false
	}
	vb, err := pointee(b)
	if err != nil {
		return false
	}
	return equal(va, vb, t, c)
}

func equal(a, b reflect.Value, t *Type, c Converter) bool {
	if present(a) != present(b) {
		return false
	}
	if !present(a) {
		return true
	}
	switch cc := c.(type) {
	case BooleanConverter:
		return cc.Bool(a) == cc.Bool(b)
	case NullConverter:
		return true
	case IntegerConverter:
		return cc.Int(a).Cmp(cc.Int(b)) == 0
	case EnumeratedConverter:
		ea, err1 := cc.Enum(a, t)
		eb, err2 := cc.Enum(b, t)
		return err1 == nil && err2 == nil && ea == eb
	case RealConverter:
		fa, fb := cc.Float(a), cc.Float(b)
		return fa == fb && math.Signbit(fa) == math.Signbit(fb) || math.IsNaN(fa) && math.IsNaN(fb)
	case BitStringConverter:
		ba, bb := cc.Bits(a), cc.Bits(b)
		if ba.BitLength != bb.BitLength {
			return false
		}
		for i := 0; i < ba.BitLength; i++ {
			if ba.At(i) != bb.At(i) {
				return false
			}
		}
		return true
	case OctetStringConverter:
		return bytes.Equal(cc.Octets(a), cc.Octets(b))
	case ObjectIDConverter:
		xa, xb := cc.Arcs(a), cc.Arcs(b)
		if len(xa) != len(xb) {
			return false
		}
		for i := range xa {
			if xa[i].Cmp(xb[i]) != 0 {
				return false
			}
		}
		return true
	case TimeConverter:
		return cc.Time(a).Equal(cc.Time(b))
	case StringConverter:
		return cc.String(a) == cc.String(b)
	case CompositeConverter:
		for i := 0; i < cc.NumMembers() && i < len(t.Components); i++ {
			m := cc.Member(i)
			if !equal(m.Locate(a), m.Locate(b), t.Components[i].Type, m.Converter) {
				return false
			}
		}
		return true
	case ChoiceConverter:
		i := cc.Index(a)
		if i != cc.Index(b) {
			return false
		}
		if i < 0 || i >= len(t.Components) {
			return true
		}
		alt := cc.Alternative(i)
		return equal(alt.Locate(a), alt.Locate(b), t.Components[i].Type, alt.Converter)
	case ListConverter:
		n := cc.Len(a)
		if n != cc.Len(b) {
			return false
		}
		e := cc.Element()
		for i := 0; i < n; i++ {
			if !equal(e.Locate(cc.At(a, i)), e.Locate(cc.At(b, i)), t.Element, e.Converter) {
				return false
			}
		}
		return true
	case OpenConverter:
		la, at, ac, err := openOf(a, t, c)
		if err != nil {
			return false
		}
		lb, bt, _, err := openOf(b, t, c)
		if err != nil || at != bt {
			return false
		}
		return equal(la, lb, at, ac)
	}
	return false
}

// Clone deep copies the value src points to into the storage dst points
// to.  Indirected members of dst get fresh storage from their allocators,
// and no slice of dst aliases src.
func Clone(dst, src interface{}, t *Type, c Converter) error {
	d, err := pointee(dst)
	if err != nil {
		return err
	}
	s, err := pointee(src)
	if err != nil {
		return err
	}
	if err := checkValue(s, t, c); err != nil {
		return err
	}
	if err := checkNative(d, t, c); err != nil {
		return err
	}
	return clone(d, s, t, c)
}

func clone(d, s reflect.Value, t *Type, c Converter) error {
	switch cc := c.(type) {
	case BooleanConverter:
		cc.SetBool(d, cc.Bool(s))
	case NullConverter:
		cc.SetNull(d)
	case IntegerConverter:
		return cc.SetInt(d, cc.Int(s))
	case EnumeratedConverter:
		e, err := cc.Enum(s, t)
		if err != nil {
			return err
		}
		return cc.SetEnum(d, t, e)
	case RealConverter:
		return cc.SetFloat(d, cc.Float(s))
	case BitStringConverter:
		cc.SetBits(d, cc.Bits(s))
	case OctetStringConverter:
		cc.SetOctets(d, cc.Octets(s))
	case ObjectIDConverter:
		return cc.SetArcs(d, cc.Arcs(s))
	case TimeConverter:
		cc.SetTime(d, cc.Time(s))
	case StringConverter:
		return cc.SetString(d, cc.String(s))
	case CompositeConverter:
		for i := 0; i < cc.NumMembers() && i < len(t.Components); i++ {
			m := cc.Member(i)
			loc := m.Locate(s)
			if !present(loc) {
				discard(d, t.Components[i].Type, m)
				continue
			}
			to, err := m.Realize(d)
			if err == nil {
				err = clone(to, loc, t.Components[i].Type, m.Converter)
			}
			if err != nil {
				return inMember(err, t.Components[i].Name)
			}
		}
	case ChoiceConverter:
		i := cc.Index(s)
		if i < 0 || i >= len(t.Components) {
			for j := 0; j < cc.NumAlternatives() && j < len(t.Components); j++ {
				discard(d, t.Components[j].Type, cc.Alternative(j))
			}
			return nil
		}
		alt := cc.Alternative(i)
		from := alt.Locate(s)
		return selectAlternative(d, t, cc, i, func(to reflect.Value, alt *MemberDescriptor) error {
			return clone(to, from, t.Components[i].Type, alt.Converter)
		})
	case ListConverter:
		cc.Clear(d)
		e := cc.Element()
		for i := 0; i < cc.Len(s); i++ {
			loc := e.Locate(cc.At(s, i))
			if !present(loc) {
				return errorf(ErrNullPointer, "%v: element %d is nil", t, i)
			}
			to, err := cc.Add(d)
			if err == nil {
				err = clone(to, loc, t.Element, e.Converter)
			}
			if err != nil {
				return inMember(err, "["+strconv.Itoa(i)+"]")
			}
		}
	case OpenConverter:
		if !present(s) {
			d.Set(reflect.Zero(d.Type()))
			return nil
		}
		key, err := cc.Key(s)
		if err != nil {
			return err
		}
		at, am, err := actual(key, t, c)
		if err != nil {
			return err
		}
		to, err := am.Realize(d)
		if err != nil {
			return err
		}
		return clone(to, am.Locate(s), at, am.Converter)
	default:
		return abstract(c, t)
	}
	return nil
}

// Free releases the storage of every indirected member of the value v
// points to, innermost first, and zeroes the value.  Absent members are
// skipped.
func Free(v interface{}, t *Type, c Converter) error {
	val, err := pointee(v)
	if err != nil {
		return err
	}
	if err := checkValue(val, t, c); err != nil {
		return err
	}
	free(val, t, c)
	val.Set(reflect.Zero(val.Type()))
	return nil
}

func free(v reflect.Value, t *Type, c Converter) {
	switch cc := c.(type) {
	case CompositeConverter:
		for i := 0; i < cc.NumMembers() && i < len(t.Components); i++ {
			m := cc.Member(i)
			if loc := m.Locate(v); present(loc) {
				free(loc, t.Components[i].Type, m.Converter)
			}
			m.Release(v)
		}
	case ChoiceConverter:
		if i := cc.Index(v); i >= 0 && i < len(t.Components) {
			alt := cc.Alternative(i)
			free(alt.Locate(v), t.Components[i].Type, alt.Converter)
		}
		for j := 0; j < cc.NumAlternatives(); j++ {
			cc.Alternative(j).Release(v)
		}
	case ListConverter:
		e := cc.Element()
		for i := 0; i < cc.Len(v); i++ {
			if loc := e.Locate(cc.At(v, i)); present(loc) {
				free(loc, t.Element, e.Converter)
			}
		}
		cc.Clear(v)
	case OpenConverter:
		if !present(v) {
			return
		}
		if loc, at, ac, err := openOf(v, t, c); err == nil && present(loc) {
			free(loc, at, ac)
			if key, err := cc.Key(v); err == nil {
				if am, err := cc.Actual(key); err == nil {
					am.Release(v)
				}
			}
		}
		v.Set(reflect.Zero(v.Type()))
	}
}
