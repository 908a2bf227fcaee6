package asnrt

import (
	"reflect"
	"testing"

	"github.com/gemalto/asnrt/tlv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemberRelease(t *testing.T) {
	type holder struct {
		Open  interface{}
		Count int64
		Ptr   *int64
	}
	kept := "kept"
	n := int64(5)
	h := holder{Open: &kept, Count: 9, Ptr: &n}
	v := reflect.ValueOf(&h).Elem()

	open := &MemberDescriptor{Name: "open", Index: []int{0}, Converter: &OpenTypeConverter{}}
	open.Release(v)
	assert.Same(t, &kept, h.Open)
	assert.Equal(t, "kept", kept)

	count := &MemberDescriptor{Name: "count", Index: []int{1}, Converter: LongConverter{}}
	count.Release(v)
	assert.EqualValues(t, 9, h.Count)

	ptr := &MemberDescriptor{Name: "ptr", Index: []int{2}, Converter: LongConverter{}, Allocator: ZeroAllocator{}}
	ptr.Release(v)
	assert.Nil(t, h.Ptr)
	assert.Zero(t, n)

	// releasing an absent member is a no-op
	ptr.Release(v)
	assert.Nil(t, h.Ptr)
}

// Note ::= SEQUENCE {
//   id     INTEGER,
//   value  ATTRIBUTE.&Type({Notes}{@id}) OPTIONAL
// }
func noteType() *Type {
	typ := attributeType()
	typ.Name = "Note"
	typ.Components[1].Optional = true
	return typ
}

func TestAbsentOpenTypeCleared(t *testing.T) {
	typ := noteType()
	DefaultBinder.Register(typ.Components[1].Type.Objects[1].Type, record{})
	c := bindFor(t, typ, &attribute{})

	for _, rules := range allRules {
		t.Run(rules.String(), func(t *testing.T) {
			b, err := Marshal(rules, typ, &attribute{ID: 1})
			require.NoError(t, err)
			if rules == DER {
				assert.Equal(t, tlv.Hex2bytes("3003020101"), b)
			}

			stale := "stale"
			v := attribute{ID: 7, Value: &stale}
			buf, err := Wrap(b, rules)
			require.NoError(t, err)
			require.NoError(t, Decode(buf, &v, typ, c))
			assert.Equal(t, attribute{ID: 1}, v)
		})
	}

	t.Run("clone", func(t *testing.T) {
		stale := "stale"
		dst := attribute{ID: 7, Value: &stale}
		require.NoError(t, Clone(&dst, &attribute{ID: 1}, typ, c))
		assert.Equal(t, attribute{ID: 1}, dst)
	})
}
