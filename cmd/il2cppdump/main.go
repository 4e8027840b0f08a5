// Command il2cppdump is a thin CLI wrapper around internal/dump: it reads a
// binary and a global-metadata.dat, calls dump.Dump, and writes the
// returned artifacts to an output directory. All real work happens in the
// core; this file is flag parsing and file I/O only.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"il2cppdump/internal/dump"
	"il2cppdump/internal/dumpconfig"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "il2cppdump:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("il2cppdump", flag.ContinueOnError)
	var (
		binaryPath   = fs.String("binary", "", "path to the game executable (ELF/PE/Mach-O/NSO/WASM)")
		metadataPath = fs.String("metadata", "", "path to global-metadata.dat")
		outDir       = fs.String("out", ".", "output directory for dump.cs, il2cpp.h, script.json, stringliteral.json")
		forceVersion = fs.Float64("force-version", 0, "override the detected global-metadata.dat version")
		forceIl2Cpp  = fs.Float64("force-il2cpp-version", 0, "override the detected binary-side registration version")
		noMethods    = fs.Bool("no-methods", false, "omit methods from dump.cs")
		noFields     = fs.Bool("no-fields", false, "omit fields from dump.cs")
		noProperties = fs.Bool("no-properties", false, "omit properties from dump.cs")
		noAttributes = fs.Bool("no-attributes", false, "omit attribute decoration lines")
		noFieldOffsets = fs.Bool("no-field-offsets", false, "omit field offset annotations")
		noMethodOffsets = fs.Bool("no-method-offsets", false, "omit method RVA/VA annotations")
		noTypeDefIndex = fs.Bool("no-typedef-index", false, "omit TypeDefIndex annotations")
		noScript     = fs.Bool("no-script", false, "skip script.json/stringliteral.json generation")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *binaryPath == "" || *metadataPath == "" {
		return fmt.Errorf("both -binary and -metadata are required")
	}

	binary, err := os.ReadFile(*binaryPath)
	if err != nil {
		return fmt.Errorf("read binary: %w", err)
	}
	metadataBytes, err := os.ReadFile(*metadataPath)
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}

	cfg := dumpconfig.Default()
	cfg.ForceVersion = *forceVersion
	cfg.ForceIl2CppVersion = *forceIl2Cpp
	cfg.DumpMethod = !*noMethods
	cfg.DumpField = !*noFields
	cfg.DumpProperty = !*noProperties
	cfg.DumpAttribute = !*noAttributes
	cfg.DumpFieldOffset = !*noFieldOffsets
	cfg.DumpMethodOffset = !*noMethodOffsets
	cfg.DumpTypeDefIndex = !*noTypeDefIndex
	cfg.GenerateScript = !*noScript

	artifacts, err := dump.Dump(binary, metadataBytes, cfg)
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for name, content := range artifacts {
		path := filepath.Join(*outDir, name)
		if err := os.WriteFile(path, content, 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}
