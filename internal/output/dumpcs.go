package output

import (
	"fmt"
	"strings"
)

// FieldEntry is one already-formatted field declaration line within a
// TypeEntry, plus the offset comment dump_field_offset appends.
type FieldEntry struct {
	Decl    string
	Offset  int64
	HasOffset bool
	// Comment carries a default-value annotation ("= 42") when the field
	// has a constant initializer the executor resolved.
	Comment string
}

// PropertyEntry is one already-formatted property declaration line.
type PropertyEntry struct {
	Decl string
}

// EventEntry is one already-formatted event declaration line.
type EventEntry struct {
	Decl string
}

// MethodEntry is one already-formatted method declaration line within a
// TypeEntry, plus the RVA/VA pair dump_method_offset appends.
type MethodEntry struct {
	Decl      string
	RVA       uint64
	VA        uint64
	HasOffset bool
	Slot      int
	HasSlot   bool
}

// TypeEntry is one fully-composed type: its declaration line plus every
// member dump.cs lists beneath it.
type TypeEntry struct {
	Namespace    string
	Decl         string // e.g. "public class Foo : Bar, IBaz"
	TypeDefIndex int32
	HasTypeDefIndex bool
	Attributes   []string // already-formatted "[Attr]" decoration lines
	Fields       []FieldEntry
	Properties   []PropertyEntry
	Events       []EventEntry
	Methods      []MethodEntry
}

// BuildDumpCS renders dump.cs: an image index block, then one namespace
// comment, attribute lines, and declaration per type, in the order given,
// with each enabled member category listed beneath it. Config toggles
// (passed as plain bools by the caller, which already applied
// dumpconfig.Config) gate whole categories rather than individual lines.
func BuildDumpCS(images []string, types []TypeEntry, dumpField, dumpMethod, dumpProperty, dumpAttribute, fieldOffset, methodOffset, typeDefIndex bool) string {
	var b strings.Builder
	for i, name := range images {
		fmt.Fprintf(&b, "// Image %d: %s\n", i, name)
	}
	if len(images) > 0 {
		b.WriteByte('\n')
	}
	lastNamespace := "\x00" // sentinel distinct from any real namespace, including ""
	for _, t := range types {
		if t.Namespace != lastNamespace {
			fmt.Fprintf(&b, "// Namespace: %s\n", t.Namespace)
			lastNamespace = t.Namespace
		}
		if dumpAttribute {
			for _, a := range t.Attributes {
				b.WriteString(a)
				b.WriteByte('\n')
			}
		}
		b.WriteString(t.Decl)
		if typeDefIndex && t.HasTypeDefIndex {
			fmt.Fprintf(&b, " // TypeDefIndex: %d", t.TypeDefIndex)
		}
		b.WriteString("\n{\n")

		if dumpField && len(t.Fields) > 0 {
			b.WriteString("  // Fields\n")
			for _, f := range t.Fields {
				b.WriteString("  ")
				b.WriteString(f.Decl)
				var notes []string
				if fieldOffset && f.HasOffset {
					notes = append(notes, fmt.Sprintf("0x%X", f.Offset))
				}
				if f.Comment != "" {
					notes = append(notes, f.Comment)
				}
				if len(notes) > 0 {
					fmt.Fprintf(&b, " // %s", strings.Join(notes, " "))
				}
				b.WriteByte('\n')
			}
		}
		if dumpProperty && len(t.Properties) > 0 {
			b.WriteString("  // Properties\n")
			for _, p := range t.Properties {
				fmt.Fprintf(&b, "  %s\n", p.Decl)
			}
		}
		if len(t.Events) > 0 {
			b.WriteString("  // Events\n")
			for _, e := range t.Events {
				fmt.Fprintf(&b, "  %s\n", e.Decl)
			}
		}
		if dumpMethod && len(t.Methods) > 0 {
			b.WriteString("  // Methods\n")
			for _, m := range t.Methods {
				b.WriteString("  ")
				b.WriteString(m.Decl)
				var notes []string
				if methodOffset && m.HasOffset {
					notes = append(notes, fmt.Sprintf("RVA: 0x%X VA: 0x%X", m.RVA, m.VA))
				}
				if m.HasSlot {
					notes = append(notes, fmt.Sprintf("Slot: %d", m.Slot))
				}
				if len(notes) > 0 {
					fmt.Fprintf(&b, " // %s", strings.Join(notes, " "))
				}
				b.WriteString(" {}\n")
			}
		}

		b.WriteString("}\n\n")
	}
	return b.String()
}
