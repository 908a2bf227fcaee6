package asnrt

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/gemalto/asnrt/tlv"
	"github.com/gemalto/flume/flumetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *Schema {
	return &Schema{
		Module:  "Test",
		Version: 1,
		Entries: []SchemaEntry{
			{
				ID:   1,
				Name: "Record",
				Kind: KindSequence,
				Components: []SchemaMember{
					{Name: "serial", Type: BasicTypeID(KindInteger)},
					{Name: "name", Type: BasicTypeID(KindUTF8String)},
					{Name: "active", Type: BasicTypeID(KindBoolean), Default: true},
					{Name: "comment", Type: 2, Optional: true},
				},
			},
			{ID: 2, Name: "Comment", Kind: KindIA5String, Tag: "[0]"},
			{ID: 3, Name: "Records", Kind: KindSequenceOf, Element: 1, Size: &Range{Lower: 0, Upper: 10, HasLower: true, HasUpper: true}},
			{
				ID:         4,
				Name:       "Color",
				Kind:       KindEnumerated,
				Extensible: true,
				Items:      []Item{{Name: "red", Value: 0}, {Name: "violet", Value: 7, Extension: true}},
			},
			{ID: 5, Name: "Wrapped", Kind: KindInteger, Tag: "[APPLICATION 1]", Explicit: true, Value: &Range{Lower: 0, HasLower: true}},
		},
	}
}

func loadTestModule(t *testing.T) *Module {
	t.Helper()
	b, err := MarshalSchema(testSchema())
	require.NoError(t, err)
	m, err := LoadModule(bytes.NewReader(b))
	require.NoError(t, err)
	return m
}

func TestLoadModule(t *testing.T) {
	defer flumetest.Start(t)()

	m := loadTestModule(t)
	assert.Equal(t, "Test", m.Name)
	assert.Equal(t, 1, m.Version)

	types := m.Types()
	require.Len(t, types, 5)
	for i, typ := range types {
		assert.EqualValues(t, i+1, typ.ID)
	}

	rec, err := m.LookupName("Record")
	require.NoError(t, err)
	comment, err := m.Lookup(2)
	require.NoError(t, err)
	require.Len(t, rec.Components, 4)
	assert.Same(t, comment, rec.Components[3].Type)
	assert.Equal(t, true, rec.Components[2].Default)
	assert.Same(t, Basic(KindInteger), rec.Components[0].Type)
	require.NotNil(t, comment.Tag)
	assert.Equal(t, tlv.Context(0), *comment.Tag)

	list, err := m.Lookup(3)
	require.NoError(t, err)
	assert.Same(t, rec, list.Element)
	assert.Equal(t, Between(0, 10), list.Size)

	color, err := m.LookupName("Color")
	require.NoError(t, err)
	assert.True(t, color.Extensible)
	assert.Equal(t, []Item{{Name: "red", Value: 0}, {Name: "violet", Value: 7, Extension: true}}, color.Items)

	basic, err := m.Lookup(BasicTypeID(KindUTF8String))
	require.NoError(t, err)
	assert.Same(t, Basic(KindUTF8String), basic)
}

func TestModuleTypesEncode(t *testing.T) {
	m := loadTestModule(t)

	rec, _, err := m.Bind(1, record{})
	require.NoError(t, err)
	b, err := Marshal(DER, rec, record{Serial: 5, Name: "ab", Active: true})
	require.NoError(t, err)
	assert.Equal(t, tlv.Hex2bytes("3007 020105 0c026162"), b)

	wrapped, err := m.Lookup(5)
	require.NoError(t, err)
	b, err = Marshal(DER, wrapped, int64(300))
	require.NoError(t, err)
	assert.Equal(t, tlv.Hex2bytes("6104 0202012c"), b)

	list, err := m.Lookup(3)
	require.NoError(t, err)
	recs := []record{{Serial: 1, Name: "a", Active: true}, {Serial: 2, Name: "b"}}
	for _, rules := range allRules {
		b, err := Marshal(rules, list, recs)
		require.NoError(t, err)
		var got []record
		require.NoError(t, Unmarshal(rules, b, list, &got))
		assert.Equal(t, recs, got)
	}
}

func TestModuleLookupErrors(t *testing.T) {
	m := loadTestModule(t)

	_, err := m.Lookup(42)
	assert.True(t, Is(err, ErrMissingComponent))
	_, err = m.LookupName("Nope")
	assert.True(t, Is(err, ErrMissingComponent))

	_, _, err = m.Bind(1, 0)
	assert.True(t, Is(err, ErrInvalidEncodeRule))
	_, _, err = m.Bind(1, nil)
	assert.True(t, Is(err, ErrNullPointer))
}

func TestModuleUnload(t *testing.T) {
	m := loadTestModule(t)
	rec, err := m.Lookup(1)
	require.NoError(t, err)

	m.Unload()
	m.Unload()

	_, err = m.Lookup(1)
	assert.True(t, Is(err, ErrMissingComponent))
	_, err = m.LookupName("Record")
	assert.True(t, Is(err, ErrMissingComponent))
	_, _, err = m.Bind(1, record{})
	assert.True(t, Is(err, ErrMissingComponent))
	assert.Empty(t, m.Types())

	// basic types don't belong to the module
	_, err = m.Lookup(BasicTypeID(KindBoolean))
	assert.NoError(t, err)

	// types handed out before still work
	_, err = Marshal(DER, rec, record{Serial: 1})
	assert.NoError(t, err)
}

func TestNewModuleErrors(t *testing.T) {
	seq := func(id int64, comps ...SchemaMember) SchemaEntry {
		return SchemaEntry{ID: id, Kind: KindSequence, Components: comps}
	}
	integer := BasicTypeID(KindInteger)
	open := SchemaEntry{ID: 9, Kind: KindOpen, Relation: "id", Objects: []SchemaObject{{Key: "1", Type: integer}}}

	tests := []struct {
		name    string
		entries []SchemaEntry
		err     error
	}{
		{"inverted value range", []SchemaEntry{{ID: 1, Kind: KindInteger, Value: &Range{Lower: 5, Upper: 1, HasLower: true, HasUpper: true}}}, ErrInvalidSize},
		{"inverted size range", []SchemaEntry{{ID: 1, Kind: KindOctetString, Size: &Range{Lower: 8, Upper: 2, HasLower: true, HasUpper: true}}}, ErrInvalidSize},
		{"negative size", []SchemaEntry{{ID: 1, Kind: KindIA5String, Size: &Range{Lower: -1, HasLower: true}}}, ErrInvalidSize},
		{"zero id", []SchemaEntry{{ID: 0, Kind: KindBoolean}}, nil},
		{"unknown kind", []SchemaEntry{{ID: 1, Kind: Kind(99)}}, nil},
		{"duplicate id", []SchemaEntry{{ID: 1, Kind: KindBoolean}, {ID: 1, Kind: KindNull}}, nil},
		{"bad tag", []SchemaEntry{{ID: 1, Kind: KindBoolean, Tag: "[FOO 1]"}}, nil},
		{"explicit without tag", []SchemaEntry{{ID: 1, Kind: KindBoolean, Explicit: true}}, nil},
		{"unknown reference", []SchemaEntry{seq(1, SchemaMember{Name: "a", Type: 7})}, nil},
		{"unknown basic type", []SchemaEntry{seq(1, SchemaMember{Name: "a", Type: -99})}, nil},
		{"list without element", []SchemaEntry{{ID: 1, Kind: KindSetOf}}, nil},
		{"objects without relation", []SchemaEntry{{ID: 1, Kind: KindOpen, Objects: []SchemaObject{{Key: "1", Type: integer}}}}, nil},
		{"relation to later sibling", []SchemaEntry{seq(1, SchemaMember{Name: "value", Type: 9}, SchemaMember{Name: "id", Type: integer}), open}, nil},
		{"relation to unknown sibling", []SchemaEntry{seq(1, SchemaMember{Name: "value", Type: 9}), open}, nil},
		{"self embedding", []SchemaEntry{seq(1, SchemaMember{Name: "self", Type: 1})}, nil},
		{"mutual embedding", []SchemaEntry{seq(1, SchemaMember{Name: "b", Type: 2}), seq(2, SchemaMember{Name: "a", Type: 1})}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			want := tc.err
			if want == nil {
				want = ErrInvalidEncodeRule
			}
			_, err := NewModule(&Schema{Module: "Bad", Entries: tc.entries})
			assert.True(t, Is(err, want), "%+v", err)
		})
	}

	_, err := NewModule(nil)
	assert.True(t, Is(err, ErrNullPointer))
}

func TestNewModuleRecursion(t *testing.T) {
	integer := BasicTypeID(KindInteger)
	m, err := NewModule(&Schema{Module: "Tree", Entries: []SchemaEntry{
		{ID: 1, Name: "Node", Kind: KindSequence, Components: []SchemaMember{
			{Name: "value", Type: integer},
			{Name: "next", Type: 1, Optional: true},
			{Name: "children", Type: 2},
		}},
		{ID: 2, Kind: KindSequenceOf, Element: 1},
	}})
	require.NoError(t, err)

	node, err := m.Lookup(1)
	require.NoError(t, err)
	assert.Same(t, node, node.Components[1].Type)
	assert.Same(t, node, node.Components[2].Type.Element)
}

func TestSchemaCBOR(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSchema(&buf, testSchema()))

	b, err := MarshalSchema(testSchema())
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), b, "encoding is deterministic")

	s, err := DecodeSchema(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, testSchema(), s)
}

func TestDecodeSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		err  error
	}{
		{"not a map", tlv.Hex2bytes("6178"), ErrInvalidEncodeRule},
		{"duplicate key", tlv.Hex2bytes("a2 01614d 01614e"), ErrInvalidEncodeRule},
		{"empty", nil, ErrIO},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeSchema(bytes.NewReader(tc.in))
			assert.True(t, Is(err, tc.err), "%+v", err)
		})
	}

	_, err := DecodeSchema(iotest.ErrReader(assert.AnError))
	assert.True(t, Is(err, ErrIO))

	assert.True(t, Is(EncodeSchema(&bytes.Buffer{}, nil), ErrNullPointer))
}

func TestSchemaJSON(t *testing.T) {
	b, err := json.Marshal(SchemaEntry{ID: 3, Kind: KindSequenceOf, Element: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"kind":"SEQUENCE OF","element":1}`, string(b))

	var e SchemaEntry
	require.NoError(t, json.Unmarshal([]byte(`{"id":2,"kind":"ia5string","tag":"[0]"}`), &e))
	assert.Equal(t, SchemaEntry{ID: 2, Kind: KindIA5String, Tag: "[0]"}, e)

	err = json.Unmarshal([]byte(`{"id":2,"kind":"TEXT"}`), &e)
	assert.Error(t, err)

	_, err = json.Marshal(SchemaEntry{Kind: Kind(99)})
	assert.Error(t, err)
}

func TestLoadModuleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.asnc")
	b, err := MarshalSchema(testSchema())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))

	m, err := LoadModuleFile(path)
	require.NoError(t, err)
	assert.Len(t, m.Types(), 5)

	_, err = LoadModuleFile(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, Is(err, ErrIO))
}
