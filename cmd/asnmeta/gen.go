package main

import (
	"bytes"
	"fmt"
	"go/format"
	"sort"
	"strings"
	"text/template"

	"github.com/ansel1/merry"
	"github.com/gemalto/asnrt"
	"github.com/gemalto/asnrt/internal/asnutil"
)

type genField struct {
	Name    string
	Type    string
	ASNName string
	Comment string
}

type genConst struct {
	Name  string
	Value int64
}

type genType struct {
	Name    string
	Comment string
	// Alias is set for scalars, so values keep the Go type the runtime
	// binds natively.
	Alias  bool
	Expr   string
	Fields []genField
	Consts []genConst
}

type genInput struct {
	Package string
	Module  string
	Imports []string
	Types   []genType
}

type generator struct {
	types   map[int64]*asnrt.SchemaEntry
	names   map[int64]string
	imports map[string]bool
}

// genCode returns Go declarations for the named entries of s.  Entries
// without a name are inlined where they are referenced.
func genCode(s *asnrt.Schema, pkg string) ([]byte, error) {
	g := &generator{
		types:   map[int64]*asnrt.SchemaEntry{},
		names:   map[int64]string{},
		imports: map[string]bool{},
	}
	used := map[string]bool{}
	for i := range s.Entries {
		e := &s.Entries[i]
		g.types[e.ID] = e
		if e.Name == "" {
			continue
		}
		name := asnutil.NormalizeName(e.Name)
		if name == "" || used[name] {
			name = fmt.Sprintf("Type%d", e.ID)
		}
		used[name] = true
		g.names[e.ID] = name
	}

	in := genInput{Package: pkg, Module: s.Module}
	ids := make([]int64, 0, len(g.names))
	for id := range g.names {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		t, err := g.decl(g.types[id])
		if err != nil {
			return nil, merry.Prependf(err, "type %d", id)
		}
		in.Types = append(in.Types, t)
	}
	for imp := range g.imports {
		in.Imports = append(in.Imports, imp)
	}
	sort.Strings(in.Imports)

	buf := bytes.NewBuffer(nil)
	tmpl := template.Must(template.New("module").Parse(moduleTmpl))
	if err := tmpl.Execute(buf, in); err != nil {
		return nil, merry.Prepend(err, "executing template")
	}

	src, err := format.Source(buf.Bytes())
	if err != nil {
		// return the unformatted source, so it can be compiled to find the problem
		log.Error("generated invalid Go source", "err", err)
		return buf.Bytes(), nil
	}
	return src, nil
}

func (g *generator) decl(e *asnrt.SchemaEntry) (genType, error) {
	t := genType{
		Name:    g.names[e.ID],
		Comment: fmt.Sprintf("%s is %s %s.", g.names[e.ID], e.Name, describe(e)),
	}
	switch e.Kind {
	case asnrt.KindSequence, asnrt.KindSet, asnrt.KindChoice:
		used := map[string]bool{}
		for i, c := range e.Components {
			ft, err := g.ref(c.Type)
			if err != nil {
				return t, merry.Prepend(err, c.Name)
			}
			ce := g.types[c.Type]
			open := (c.Type < 0 && asnrt.Kind(-1-c.Type) == asnrt.KindOpen) || (ce != nil && ce.Kind == asnrt.KindOpen)
			if !open && (e.Kind == asnrt.KindChoice || c.Optional && c.Default == nil) {
				ft = "*" + ft
			}
			f := genField{
				Name:    uniqueName(c.Name, i, used),
				Type:    ft,
				ASNName: c.Name,
			}
			switch {
			case c.Default != nil:
				f.Comment = fmt.Sprintf("DEFAULT %v", c.Default)
			case c.Optional:
				f.Comment = "OPTIONAL"
			}
			if c.Extension {
				f.Comment = strings.TrimSpace(f.Comment + " extension")
			}
			t.Fields = append(t.Fields, f)
		}
		if len(t.Fields) == 0 {
			t.Expr = "struct{}"
		}
		return t, nil
	case asnrt.KindEnumerated:
		t.Expr = "int64"
		for _, it := range e.Items {
			t.Consts = append(t.Consts, genConst{Name: t.Name + asnutil.NormalizeName(it.Name), Value: it.Value})
		}
		return t, nil
	}
	expr, err := g.expr(e)
	if err != nil {
		return t, err
	}
	t.Expr = expr
	t.Alias = !e.Kind.IsList()
	return t, nil
}

// ref returns the Go type expression for a reference to type id.
func (g *generator) ref(id int64) (string, error) {
	if id < 0 {
		k := asnrt.Kind(-1 - id)
		if !k.Valid() {
			return "", merry.Errorf("unknown basic type %d", id)
		}
		return g.expr(&asnrt.SchemaEntry{Kind: k})
	}
	if name, ok := g.names[id]; ok {
		return name, nil
	}
	e, ok := g.types[id]
	if !ok {
		return "", merry.Errorf("unknown type %d", id)
	}
	if e.Kind.IsComposite() {
		return "", merry.Errorf("anonymous %v type %d can't be inlined", e.Kind, id)
	}
	return g.expr(e)
}

func (g *generator) expr(e *asnrt.SchemaEntry) (string, error) {
	switch e.Kind {
	case asnrt.KindBoolean:
		return "bool", nil
	case asnrt.KindNull:
		return g.pkg("asnrt") + "Null", nil
	case asnrt.KindInteger:
		if e.Value != nil && e.Value.HasLower && e.Value.HasUpper && !e.Value.Extensible {
			return "int64", nil
		}
		g.imports["math/big"] = true
		return "big.Int", nil
	case asnrt.KindEnumerated:
		return "int64", nil
	case asnrt.KindReal:
		return "float64", nil
	case asnrt.KindBitString:
		return g.pkg("asnrt") + "BitString", nil
	case asnrt.KindOctetString, asnrt.KindCharacterString:
		return "[]byte", nil
	case asnrt.KindObjectIdentifier, asnrt.KindRelativeOID:
		return g.pkg("asnrt") + "ObjectIdentifier", nil
	case asnrt.KindOpen:
		return "interface{}", nil
	case asnrt.KindSequenceOf, asnrt.KindSetOf:
		et, err := g.ref(e.Element)
		if err != nil {
			return "", err
		}
		return "[]" + et, nil
	}
	if e.Kind.IsTime() {
		g.imports["time"] = true
		return "time.Time", nil
	}
	if e.Kind.IsString() {
		return "string", nil
	}
	return "", merry.Errorf("unknown kind %v", e.Kind)
}

func (g *generator) pkg(name string) string {
	g.imports["github.com/gemalto/asnrt"] = true
	return name + "."
}

func uniqueName(name string, i int, used map[string]bool) string {
	s := asnutil.NormalizeName(name)
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		s = fmt.Sprintf("F%d", i)
	}
	for used[s] {
		s += "_"
	}
	used[s] = true
	return s
}

func describe(e *asnrt.SchemaEntry) string {
	var sb strings.Builder
	if e.Tag != "" {
		sb.WriteString(e.Tag)
		sb.WriteString(" ")
		if e.Explicit {
			sb.WriteString("EXPLICIT ")
		}
	}
	sb.WriteString(e.Kind.String())
	if e.Extensible {
		sb.WriteString(", extensible")
	}
	return sb.String()
}

const moduleTmpl = `// Code generated by asnmeta; DO NOT EDIT.

{{with .Module}}// Types of module {{.}}.
{{end}}package {{.Package}}

{{with .Imports}}
import (
{{range .}}	"{{.}}"
{{end}})
{{end}}

{{range .Types}}
// {{.Comment}}
{{if .Fields}}type {{.Name}} struct {
{{range .Fields}}	{{.Name}} {{.Type}} ` + "`asn:\"{{.ASNName}}\"`" + `{{with .Comment}} // {{.}}{{end}}
{{end}}}
{{else if .Alias}}type {{.Name}} = {{.Expr}}
{{else}}type {{.Name}} {{.Expr}}
{{end}}
{{if .Consts}}{{$type := .Name}}
const (
{{range .Consts}}	{{.Name}} {{$type}} = {{.Value}}
{{end}})
{{end}}
{{end}}
`
