package output

import (
	"strings"
	"testing"

	"il2cppdump/internal/registration"
)

func TestCTypeName(t *testing.T) {
	cases := []struct {
		kind registration.TypeEnum
		want string
	}{
		{registration.TypeBoolean, "bool"},
		{registration.TypeI4, "int32_t"},
		{registration.TypeString, "System_String_o*"},
		{registration.TypeObject, "Il2CppObject*"},
	}
	for _, c := range cases {
		if got := CTypeName(c.kind); got != c.want {
			t.Errorf("CTypeName(%v) = %q, want %q", c.kind, got, c.want)
		}
	}
}

func TestCTypeNameUnknownFallsBackToVoidPointer(t *testing.T) {
	if got := CTypeName(registration.TypeEnum(0xFF)); got != "void*" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildHeaderRendersFieldsWithComments(t *testing.T) {
	out := BuildHeader([]HeaderStruct{
		{
			Name: "MyClass_o",
			Fields: []HeaderField{
				{CType: "int32_t", Name: "count", Comment: "0x10"},
				{CType: "System_String_o*", Name: "label"},
			},
		},
	})
	if !strings.Contains(out, "struct MyClass_o") {
		t.Fatalf("missing struct header: %s", out)
	}
	if !strings.Contains(out, "int32_t count; // 0x10") {
		t.Fatalf("missing field+comment: %s", out)
	}
	if !strings.Contains(out, "System_String_o* label;") {
		t.Fatalf("missing field without comment: %s", out)
	}
}

func TestBuildDumpCSGroupsByNamespaceAndHonorsToggles(t *testing.T) {
	types := []TypeEntry{
		{
			Namespace:       "Game",
			Decl:            "public class Player : Entity, IDamageable",
			TypeDefIndex:    3,
			HasTypeDefIndex: true,
			Attributes:      []string{"[Serializable]"},
			Fields:          []FieldEntry{{Decl: "public int hp;", Offset: 0x8, HasOffset: true}},
			Properties:      []PropertyEntry{{Decl: "public int Health { get; set; }"}},
			Events:          []EventEntry{{Decl: "public event Action OnDeath;"}},
			Methods:         []MethodEntry{{Decl: "public void Heal()", VA: 0x4000, RVA: 0x1000, HasOffset: true}},
		},
	}

	full := BuildDumpCS([]string{"Assembly-CSharp.dll"}, types, true, true, true, true, true, true, true)
	if !strings.Contains(full, "// Image 0: Assembly-CSharp.dll") {
		t.Fatalf("missing image header: %s", full)
	}
	if !strings.Contains(full, "// Namespace: Game") {
		t.Fatalf("missing namespace comment: %s", full)
	}
	if !strings.Contains(full, "[Serializable]") {
		t.Fatalf("missing attribute line: %s", full)
	}
	if !strings.Contains(full, ": Entity, IDamageable") {
		t.Fatalf("missing base/interface list: %s", full)
	}
	if !strings.Contains(full, "TypeDefIndex: 3") {
		t.Fatalf("missing TypeDefIndex annotation: %s", full)
	}
	if !strings.Contains(full, "0x8") {
		t.Fatalf("missing field offset: %s", full)
	}
	if !strings.Contains(full, "public event Action OnDeath;") {
		t.Fatalf("missing event: %s", full)
	}
	if !strings.Contains(full, "RVA: 0x1000 VA: 0x4000") {
		t.Fatalf("missing method RVA/VA: %s", full)
	}

	minimal := BuildDumpCS(nil, types, false, false, false, false, false, false, false)
	if strings.Contains(minimal, "hp;") || strings.Contains(minimal, "Heal") || strings.Contains(minimal, "Serializable") {
		t.Fatalf("expected fields/methods/attributes suppressed: %s", minimal)
	}
	if strings.Contains(minimal, "TypeDefIndex") {
		t.Fatalf("expected TypeDefIndex suppressed: %s", minimal)
	}
}

func TestBuildScriptJSONSortsByAddress(t *testing.T) {
	data := &ScriptData{
		ScriptMethod: []ScriptMethod{
			{Address: 0x2000, Name: "B"},
			{Address: 0x1000, Name: "A"},
		},
	}
	b, err := BuildScriptJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if strings.Index(s, `"A"`) > strings.Index(s, `"B"`) {
		t.Fatalf("expected A (lower address) before B: %s", s)
	}
}

func TestScriptDataCollectAddressesDedupes(t *testing.T) {
	data := &ScriptData{
		ScriptMethod: []ScriptMethod{{Address: 0x1000}},
		ScriptString: []ScriptString{{Address: 0x1000}, {Address: 0x2000}},
	}
	data.CollectAddresses()
	if len(data.Addresses) != 2 {
		t.Fatalf("expected 2 unique addresses, got %v", data.Addresses)
	}
}

func TestBuildStringLiteralJSONOrdersByIndexNotInsertion(t *testing.T) {
	b, err := BuildStringLiteralJSON([]StringLiteralEntry{
		{Index: 1, Offset: 0x20, Length: 6, Value: "second"},
		{Index: 0, Offset: 0x10, Length: 5, Value: "first"},
	})
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if strings.Index(s, `"first"`) > strings.Index(s, `"second"`) {
		t.Fatalf("expected first before second: %s", s)
	}
	if !strings.Contains(s, `"index"`) || !strings.Contains(s, `"offset"`) || !strings.Contains(s, `"length"`) {
		t.Fatalf("expected index/offset/length fields: %s", s)
	}
}
