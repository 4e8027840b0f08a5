// Package output builds the four artifacts a dump produces: dump.cs (a
// C#-like pseudo-source listing of every type), il2cpp.h (C struct
// declarations for the same types), script.json (address/name records for
// IDA/Ghidra batch annotation), and stringliteral.json (the decoded
// string-literal table).
//
// The Build* functions return bytes rather than writing to disk: the
// core's entry point returns an in-memory dumpconfig.Artifacts map, and
// only the CLI wrapper ever calls os.WriteFile.
package output

import "encoding/json"

// marshalIndent renders v as two-space-indented JSON, matching the format
// the produced-file-formats requirement specifies for script.json and
// stringliteral.json.
func marshalIndent(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
