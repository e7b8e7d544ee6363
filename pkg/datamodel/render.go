// SPDX-License-Identifier: Apache-2.0

package datamodel

import (
	"fmt"
	"sort"
	"strings"
)

// Render produces a deterministic, human-readable textual representation of
// a Datamodel, in the Prisma-schema-like style consumed by calculateDatamodel
// callers as a preview of the target model. Models are rendered in
// declaration order; fields within a model in declaration order.
func Render(dm *Datamodel) string {
	var b strings.Builder

	for i, e := range dm.Enums {
		if i > 0 {
			b.WriteByte('\n')
		}
		renderEnum(&b, e)
	}
	if len(dm.Enums) > 0 && len(dm.Models) > 0 {
		b.WriteByte('\n')
	}
	for i, m := range dm.Models {
		if i > 0 {
			b.WriteByte('\n')
		}
		renderModel(&b, m)
	}

	return b.String()
}

func renderEnum(b *strings.Builder, e *Enum) {
	fmt.Fprintf(b, "enum %s {\n", e.Name)
	for _, v := range e.Values {
		fmt.Fprintf(b, "  %s\n", v.Name)
	}
	b.WriteString("}\n")
}

func renderModel(b *strings.Builder, m *Model) {
	fmt.Fprintf(b, "model %s {\n", m.Name)
	for _, f := range m.Fields {
		fmt.Fprintf(b, "  %s\n", renderField(f))
	}
	if len(m.IDFields) > 1 {
		fmt.Fprintf(b, "  @@id([%s])\n", strings.Join(m.IDFields, ", "))
	}
	names := make([]string, 0, len(m.Indexes))
	byName := map[string]*ModelIndex{}
	for _, ix := range m.Indexes {
		name := indexName(m, ix)
		names = append(names, name)
		byName[name] = ix
	}
	sort.Strings(names)
	for _, name := range names {
		ix := byName[name]
		directive := "@@index"
		if ix.Kind == IndexKindUnique {
			directive = "@@unique"
		}
		fmt.Fprintf(b, "  %s([%s])\n", directive, strings.Join(ix.Fields, ", "))
	}
	b.WriteString("}\n")
}

func renderField(f *Field) string {
	var typ string
	switch {
	case f.Type.IsRelation():
		typ = f.Type.Relation.ReferencedModel
	case f.Type.IsEnum():
		typ = f.Type.EnumName
	default:
		typ = string(f.Type.Scalar)
	}

	switch f.Arity {
	case ArityOptional:
		typ += "?"
	case ArityList:
		typ += "[]"
	}

	var attrs []string
	if f.IsID {
		attrs = append(attrs, "@id")
	}
	if f.IsUnique {
		attrs = append(attrs, "@unique")
	}
	if f.Default != nil {
		attrs = append(attrs, renderDefault(f.Default))
	}
	if f.IsUpdatedAt {
		attrs = append(attrs, "@updatedAt")
	}

	out := fmt.Sprintf("%s %s", f.Name, typ)
	if len(attrs) > 0 {
		out += " " + strings.Join(attrs, " ")
	}
	return out
}

func renderDefault(d *Default) string {
	if d.Function != "" {
		return fmt.Sprintf("@default(%s)", d.Function)
	}
	if d.Literal != nil {
		return fmt.Sprintf("@default(%s)", *d.Literal)
	}
	return "@default"
}
