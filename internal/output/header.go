package output

import (
	"fmt"
	"strings"

	"il2cppdump/internal/registration"
)

// cTypeMap is the fixed primitive-to-C mapping il2cpp.h uses.
var cTypeMap = map[registration.TypeEnum]string{
	registration.TypeVoid:    "void",
	registration.TypeBoolean: "bool",
	registration.TypeChar:    "uint16_t",
	registration.TypeI1:      "int8_t",
	registration.TypeU1:      "uint8_t",
	registration.TypeI2:      "int16_t",
	registration.TypeU2:      "uint16_t",
	registration.TypeI4:      "int32_t",
	registration.TypeU4:      "uint32_t",
	registration.TypeI8:      "int64_t",
	registration.TypeU8:      "uint64_t",
	registration.TypeR4:      "float",
	registration.TypeR8:      "double",
	registration.TypeString:  "System_String_o*",
	registration.TypeI:       "intptr_t",
	registration.TypeU:       "uintptr_t",
	registration.TypeObject:  "Il2CppObject*",
}

// CTypeName maps a primitive Il2CppTypeEnum to its il2cpp.h C type, falling
// back to "void*" for anything not in the fixed table (reference types the
// header represents as opaque object pointers).
func CTypeName(kind registration.TypeEnum) string {
	if name, ok := cTypeMap[kind]; ok {
		return name
	}
	return "void*"
}

// HeaderField is one field slot of a generated C struct.
type HeaderField struct {
	CType string
	Name  string
	// Comment, if set, is appended after the field as a line comment
	// (field offset, in the style dump_field_offset requests).
	Comment string
}

// HeaderStruct is one type's C struct declaration. Fields are expected to
// have already been resolved to primitive C types or to pointer/embedded
// struct names by the caller.
type HeaderStruct struct {
	Name   string
	Fields []HeaderField
}

// BuildHeader renders il2cpp.h: a forward declaration for every struct (so
// pointer-typed fields never need their target's full definition in scope),
// then one struct definition per entry, in the order given. Callers are
// expected to have already topologically ordered structs by their
// embed-by-value dependencies, since a struct embedding another by value
// needs that struct's full definition above it.
func BuildHeader(structs []HeaderStruct) string {
	var b strings.Builder
	b.WriteString("// generated IL2CPP struct declarations\n\n")
	for _, s := range structs {
		fmt.Fprintf(&b, "struct %s;\n", s.Name)
	}
	b.WriteString("\n")
	for _, s := range structs {
		fmt.Fprintf(&b, "struct %s\n{\n", s.Name)
		for _, f := range s.Fields {
			if f.Comment != "" {
				fmt.Fprintf(&b, "\t%s %s; // %s\n", f.CType, f.Name, f.Comment)
			} else {
				fmt.Fprintf(&b, "\t%s %s;\n", f.CType, f.Name)
			}
		}
		b.WriteString("};\n\n")
	}
	return b.String()
}
