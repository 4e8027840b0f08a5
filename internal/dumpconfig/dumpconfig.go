// Package dumpconfig holds the value types threaded explicitly through
// every stage of the dumper core: the caller-supplied options and the
// output artifacts the core produces. Neither type is ever read from or
// written to a global.
package dumpconfig

// Config enumerates every option the core accepts. A zero Config disables
// everything; callers that want the documented defaults should start from
// Default() instead.
type Config struct {
	DumpMethod        bool
	DumpField         bool
	DumpProperty      bool
	DumpAttribute     bool
	DumpFieldOffset   bool
	DumpMethodOffset  bool
	DumpTypeDefIndex  bool
	GenerateScript    bool

	// ForceIl2CppVersion overrides the detected binary-side (registration)
	// version when non-zero.
	ForceIl2CppVersion float64
	// ForceVersion overrides the detected global-metadata.dat version when
	// non-zero.
	ForceVersion float64
}

// Default returns the Config with every documented default applied.
func Default() Config {
	return Config{
		DumpMethod:       true,
		DumpField:        true,
		DumpProperty:     true,
		DumpAttribute:    true,
		DumpFieldOffset:  true,
		DumpMethodOffset: true,
		DumpTypeDefIndex: true,
		GenerateScript:   true,
	}
}

// Artifacts maps each produced file's name to its encoded content:
// "dump.cs", "il2cpp.h", and, when Config.GenerateScript is set,
// "script.json" and "stringliteral.json".
type Artifacts map[string][]byte
