// Package dump wires the loader, registration, executor, and output
// packages into the single external entry point: given a raw executable
// and a raw global-metadata.dat, produce the four dump artifacts.
package dump

import (
	"fmt"
	"strings"

	"il2cppdump/internal/dumpconfig"
	"il2cppdump/internal/executor"
	"il2cppdump/internal/ilog"
	"il2cppdump/internal/loader"
	"il2cppdump/internal/metadata"
	"il2cppdump/internal/output"
	"il2cppdump/internal/registration"
	"il2cppdump/internal/vmem"

	"go.uber.org/zap"
)

// Dump decodes metadataBytes, locates and decodes the registration
// structures inside binary, resolves the full type graph, and renders
// dump.cs, il2cpp.h, and (when cfg.GenerateScript is set) script.json and
// stringliteral.json.
func Dump(binary, metadataBytes []byte, cfg dumpconfig.Config) (dumpconfig.Artifacts, error) {
	log := ilog.Logger()

	meta, err := metadata.Load(metadataBytes, cfg.ForceVersion)
	if err != nil {
		return nil, fmt.Errorf("dump: metadata: %w", err)
	}

	view, format, err := loader.Load(binary)
	if err != nil {
		return nil, fmt.Errorf("dump: binary: %w", err)
	}

	version := meta.Version
	if cfg.ForceIl2CppVersion != 0 {
		version = cfg.ForceIl2CppVersion
	}

	counts := loader.LocatorCounts{
		MethodCount:          len(meta.Methods),
		TypeDefinitionsCount: len(meta.TypeDefinitions),
		ImageCount:           len(meta.Images),
		MetadataUsagesCount:  len(meta.MetadataUsagePairs),
	}
	reg, err := loader.Locate(view, format, version, counts, loader.LocatorOptions{RequireAllPointers: true})
	if err != nil {
		return nil, fmt.Errorf("dump: locate registration: %w", err)
	}
	log.Debug("located registration", zap.Uint64("code", reg.CodeRegistration), zap.Uint64("metadata", reg.MetadataRegistration))

	img := executor.NewImage(view, meta)
	img.Version = version
	img.ImageBase = imageBase(view)
	if err := img.Init(reg.CodeRegistration, reg.MetadataRegistration); err != nil {
		return nil, fmt.Errorf("dump: init executor: %w", err)
	}

	r := executor.NewResolver(img)

	types, err := buildTypeEntries(meta, img, r, cfg)
	if err != nil {
		return nil, fmt.Errorf("dump: build types: %w", err)
	}
	headers := buildHeaderStructs(meta, img, r, types)

	imageNames := make([]string, len(meta.Images))
	for i := range meta.Images {
		imageNames[i] = imageName(meta, &meta.Images[i])
	}

	artifacts := dumpconfig.Artifacts{
		"dump.cs":  []byte(output.BuildDumpCS(imageNames, types, cfg.DumpField, cfg.DumpMethod, cfg.DumpProperty, cfg.DumpAttribute, cfg.DumpFieldOffset, cfg.DumpMethodOffset, cfg.DumpTypeDefIndex)),
		"il2cpp.h": []byte(output.BuildHeader(headers)),
	}

	if cfg.GenerateScript {
		script := buildScriptData(meta, img, r)
		scriptJSON, err := output.BuildScriptJSON(script)
		if err != nil {
			return nil, fmt.Errorf("dump: build script.json: %w", err)
		}
		artifacts["script.json"] = scriptJSON

		literals := buildStringLiterals(meta)
		literalsJSON, err := output.BuildStringLiteralJSON(literals)
		if err != nil {
			return nil, fmt.Errorf("dump: build stringliteral.json: %w", err)
		}
		artifacts["stringliteral.json"] = literalsJSON
	}

	return artifacts, nil
}

// imageBase returns the lowest mapped virtual address, the conventional
// "module base" RVA computations in dump.cs's method-offset annotations are
// relative to.
func imageBase(view *vmem.View) uint64 {
	if len(view.Segments) == 0 {
		return 0
	}
	base := view.Segments[0].VAddr
	for _, seg := range view.Segments[1:] {
		if seg.VAddr < base {
			base = seg.VAddr
		}
	}
	return base
}

// imageOf finds the ImageDefinition a type-definition index belongs to, by
// its declared [TypeStart, TypeStart+TypeCount) range.
func imageOf(meta *metadata.Image, typeIndex int32) (*metadata.ImageDefinition, int) {
	for i := range meta.Images {
		im := &meta.Images[i]
		if typeIndex >= im.TypeStart && typeIndex < im.TypeStart+im.TypeCount {
			return im, i
		}
	}
	return nil, -1
}

func imageName(meta *metadata.Image, im *metadata.ImageDefinition) string {
	if im == nil {
		return ""
	}
	name, err := meta.StringAt(im.NameIndex)
	if err != nil {
		return ""
	}
	return name
}

func buildTypeEntries(meta *metadata.Image, img *executor.Image, r *executor.Resolver, cfg dumpconfig.Config) ([]output.TypeEntry, error) {
	defaults := make(map[int32]*metadata.FieldDefaultValue, len(meta.FieldDefaultValues))
	for i := range meta.FieldDefaultValues {
		dv := &meta.FieldDefaultValues[i]
		defaults[dv.FieldIndex] = dv
	}

	entries := make([]output.TypeEntry, 0, len(meta.TypeDefinitions))
	for i := range meta.TypeDefinitions {
		td := &meta.TypeDefinitions[i]
		idx := int32(i)

		ns, _ := meta.StringAt(td.NamespaceIndex)
		name, err := r.TypeDefName(td, idx, false, true)
		if err != nil {
			name = "UnknownType"
		}

		decl := fmt.Sprintf("%s%s %s %s", typeVisibilityKeyword(td.Flags), modifierPrefix(td.Flags), typeKindKeyword(td.Flags, td.IsValueType(), td.IsEnum()), name)
		if extends := buildExtends(meta, img, r, td); len(extends) > 0 {
			decl += " : " + strings.Join(extends, ", ")
		}

		entry := output.TypeEntry{
			Namespace:       ns,
			Decl:            decl,
			TypeDefIndex:    idx,
			HasTypeDefIndex: true,
		}

		im, _ := imageOf(meta, idx)
		imgName := imageName(meta, im)

		if cfg.DumpAttribute {
			entry.Attributes = buildAttributes(meta, img, r, td, im, imgName)
		}
		if cfg.DumpField {
			entry.Fields = buildFields(meta, img, r, td, idx, defaults)
		}
		if cfg.DumpProperty {
			entry.Properties = buildProperties(meta, img, r, td)
		}
		entry.Events = buildEvents(meta, img, r, td)
		if cfg.DumpMethod {
			entry.Methods = buildMethods(meta, img, r, td, imgName)
		}
		entries = append(entries, entry)
	}

	// entries is already in image order, then declaring type-def index order:
	// meta.TypeDefinitions itself is laid out that way (each ImageDefinition's
	// TypeStart/TypeCount names a contiguous sub-range), so no further sort
	// is applied here.
	return entries, nil
}

func modifierPrefix(flags int32) string {
	if m := typeModifiers(flags); m != "" {
		return " " + trimTrailingSpace(m)
	}
	return ""
}

func trimTrailingSpace(s string) string {
	if len(s) > 0 && s[len(s)-1] == ' ' {
		return s[:len(s)-1]
	}
	return s
}

// buildExtends collects the base-class name (classes only; value types and
// enums render without their implicit ValueType/Enum parent, and object is
// never listed) followed by every implemented interface.
func buildExtends(meta *metadata.Image, img *executor.Image, r *executor.Resolver, td *metadata.TypeDefinition) []string {
	var extends []string
	if td.ParentIndex >= 0 && !td.IsValueType() && !td.IsEnum() {
		if t, ok := img.TypeAtIndex(td.ParentIndex); ok {
			if n, err := r.TypeName(t, false, false); err == nil && n != "object" {
				extends = append(extends, n)
			}
		}
	}
	for i := int32(0); i < int32(td.InterfacesCount); i++ {
		idx := td.InterfacesStart + i
		if idx < 0 || int(idx) >= len(meta.Interfaces) {
			continue
		}
		if t, ok := img.TypeAtIndex(meta.Interfaces[idx]); ok {
			if n, err := r.TypeName(t, false, false); err == nil {
				extends = append(extends, n)
			}
		}
	}
	return extends
}

// buildAttributes renders the "[Attr]" decoration lines for a type. Only the
// 21-27.2 attribute_type_ranges/attribute_types encoding is resolved; v29+
// moved attribute arguments into a serialized blob (attribute_data_range)
// whose constructor-call decoding this repository does not attempt, so types
// at those versions carry no decoration lines.
func buildAttributes(meta *metadata.Image, img *executor.Image, r *executor.Resolver, td *metadata.TypeDefinition, im *metadata.ImageDefinition, imgName string) []string {
	if len(meta.AttributeTypeRanges) == 0 {
		return nil
	}
	rangeIndex := int32(-1)
	if img.Version >= 24.1 {
		if im == nil {
			return nil
		}
		for i := im.CustomAttributeStart; i < im.CustomAttributeStart+im.CustomAttributeCount; i++ {
			if i < 0 || int(i) >= len(meta.AttributeTypeRanges) {
				break
			}
			if meta.AttributeTypeRanges[i].Token == td.Token {
				rangeIndex = i
				break
			}
		}
	} else {
		rangeIndex = td.CustomAttributeIndex
	}
	if rangeIndex < 0 || int(rangeIndex) >= len(meta.AttributeTypeRanges) {
		return nil
	}
	rng := &meta.AttributeTypeRanges[rangeIndex]

	// Pre-27 carries a flat per-range generator pointer table; 27-27.2 has
	// one cache-generator function per image instead.
	var generatorVA uint64
	if img.Version < 27 && int(rangeIndex) < len(img.CustomAttributeGenerators) {
		generatorVA = img.CustomAttributeGenerators[rangeIndex]
	} else if img.Version >= 27 {
		if m := img.CodeGenModules[imgName]; m != nil {
			generatorVA = m.CustomAttributeCacheGenerator
		}
	}
	generator := ""
	if generatorVA != 0 {
		generator = fmt.Sprintf(" // RVA: 0x%X VA: 0x%X", generatorVA-img.ImageBase, generatorVA)
	}

	var lines []string
	for i := rng.Start; i < rng.Start+rng.Count; i++ {
		if i < 0 || int(i) >= len(meta.AttributeTypes) {
			break
		}
		t, ok := img.TypeAtIndex(meta.AttributeTypes[i])
		if !ok {
			continue
		}
		n, err := r.TypeName(t, false, false)
		if err != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s]%s", strings.TrimSuffix(n, "Attribute"), generator))
	}
	return lines
}

const fieldAttributeStatic = 0x10

func buildFields(meta *metadata.Image, img *executor.Image, r *executor.Resolver, td *metadata.TypeDefinition, tdIndex int32, defaults map[int32]*metadata.FieldDefaultValue) []output.FieldEntry {
	fields := make([]output.FieldEntry, 0, td.FieldCount)
	for i := int32(0); i < int32(td.FieldCount); i++ {
		idx := td.FieldStart + i
		f, err := meta.FieldAt(idx)
		if err != nil {
			continue
		}
		name, _ := meta.StringAt(f.NameIndex)
		t, ok := img.TypeAtIndex(f.TypeIndex)
		typeName := "UnknownType"
		isStatic := false
		if ok {
			if n, err := r.TypeName(t, false, false); err == nil {
				typeName = byRefPrefix(t) + n
			}
			isStatic = t.Attrs&fieldAttributeStatic != 0
		}

		fe := output.FieldEntry{Decl: fmt.Sprintf("public %s %s;", typeName, name)}
		if off, ok := img.FieldOffset(tdIndex, i, idx, td.IsValueType(), isStatic); ok {
			fe.Offset = off
			fe.HasOffset = true
		}
		if dv := defaults[idx]; dv != nil {
			remaining := meta.Header.FieldAndParameterDefaultValueDataSize - dv.DataIndex
			data, err := meta.FieldDefaultValueData(dv.DataIndex, remaining)
			if err == nil {
				if v, ok := r.DefaultValue(dv.TypeIndex, data); ok {
					fe.Comment = fmt.Sprintf("= %v", v)
				}
			}
		}
		fields = append(fields, fe)
	}
	return fields
}

// propertyAccessorMethod fetches the method backing a property's get/set
// slot; slots are indices relative to the declaring type's MethodStart.
func propertyAccessorMethod(meta *metadata.Image, td *metadata.TypeDefinition, slot int32) *metadata.MethodDefinition {
	if slot < 0 {
		return nil
	}
	m, err := meta.MethodAt(td.MethodStart + slot)
	if err != nil {
		return nil
	}
	return m
}

func buildProperties(meta *metadata.Image, img *executor.Image, r *executor.Resolver, td *metadata.TypeDefinition) []output.PropertyEntry {
	props := make([]output.PropertyEntry, 0, td.PropertyCount)
	for i := int32(0); i < int32(td.PropertyCount); i++ {
		idx := td.PropertyStart + i
		if idx < 0 || int(idx) >= len(meta.Properties) {
			continue
		}
		p := &meta.Properties[idx]
		name, _ := meta.StringAt(p.NameIndex)

		// The property's type comes from its getter's return type, or
		// failing that the setter's value parameter.
		var t *registration.Type
		access := "public"
		mods := ""
		accessors := ""
		if getter := propertyAccessorMethod(meta, td, p.Get); getter != nil {
			accessors += "get; "
			t, _ = img.TypeAtIndex(getter.ReturnType)
			access = methodAccessKeyword(getter.Flags)
			mods = modifierSuffix(getter.Flags)
		}
		if setter := propertyAccessorMethod(meta, td, p.Set); setter != nil {
			accessors += "set; "
			if t == nil && setter.ParameterCount > 0 {
				last := setter.ParameterStart + int32(setter.ParameterCount) - 1
				if last >= 0 && int(last) < len(meta.Parameters) {
					t, _ = img.TypeAtIndex(meta.Parameters[last].TypeIndex)
				}
			}
			if accessors == "set; " {
				access = methodAccessKeyword(setter.Flags)
				mods = modifierSuffix(setter.Flags)
			}
		}
		typeName := "object"
		if t != nil {
			if n, err := r.TypeName(t, false, false); err == nil {
				typeName = byRefPrefix(t) + n
			}
		}
		props = append(props, output.PropertyEntry{Decl: fmt.Sprintf("%s%s %s %s { %s}", access, mods, typeName, name, accessors)})
	}
	return props
}

func buildEvents(meta *metadata.Image, img *executor.Image, r *executor.Resolver, td *metadata.TypeDefinition) []output.EventEntry {
	events := make([]output.EventEntry, 0, td.EventCount)
	for i := int32(0); i < int32(td.EventCount); i++ {
		idx := td.EventStart + i
		if idx < 0 || int(idx) >= len(meta.Events) {
			continue
		}
		e := &meta.Events[idx]
		name, _ := meta.StringAt(e.NameIndex)
		typeName := "object"
		if t, ok := img.TypeAtIndex(e.TypeIndex); ok {
			if n, err := r.TypeName(t, false, false); err == nil {
				typeName = n
			}
		}
		events = append(events, output.EventEntry{Decl: fmt.Sprintf("public event %s %s;", typeName, name)})
	}
	return events
}

func buildMethods(meta *metadata.Image, img *executor.Image, r *executor.Resolver, td *metadata.TypeDefinition, imgName string) []output.MethodEntry {
	methods := make([]output.MethodEntry, 0, td.MethodCount)
	for i := int32(0); i < int32(td.MethodCount); i++ {
		idx := td.MethodStart + i
		m, err := meta.MethodAt(idx)
		if err != nil {
			continue
		}
		name, _ := meta.StringAt(m.NameIndex)
		retType, ok := img.TypeAtIndex(m.ReturnType)
		retName := "void"
		if ok {
			if n, err := r.TypeName(retType, false, false); err == nil {
				retName = byRefPrefix(retType) + n
			}
		}
		params := buildParameterList(meta, img, r, m)

		decl := fmt.Sprintf("%s%s%s %s(%s)", methodAccessKeyword(m.Flags), modifierSuffix(m.Flags), " "+retName, name, params)

		me := output.MethodEntry{Decl: decl}
		va, err := r.MethodPointer(imgName, m.MethodIndex, m.Token)
		if err == nil && va != 0 {
			me.VA = va
			me.RVA = va - img.ImageBase
			me.HasOffset = true
		}
		if m.Slot != 0xFFFF {
			me.Slot = int(m.Slot)
			me.HasSlot = true
		}
		methods = append(methods, me)
	}
	return methods
}

// byRefPrefix returns "ref " for a by-reference type, the leading modifier
// signatures render before the type name, and "" otherwise.
func byRefPrefix(t *registration.Type) string {
	if t != nil && t.ByRef {
		return "ref "
	}
	return ""
}

func modifierSuffix(flags uint16) string {
	if m := methodModifiers(flags); m != "" {
		return " " + trimTrailingSpace(m)
	}
	return ""
}

func buildParameterList(meta *metadata.Image, img *executor.Image, r *executor.Resolver, m *metadata.MethodDefinition) string {
	parts := make([]string, 0, m.ParameterCount)
	for i := int32(0); i < int32(m.ParameterCount); i++ {
		idx := m.ParameterStart + i
		if idx < 0 || int(idx) >= len(meta.Parameters) {
			continue
		}
		p := &meta.Parameters[idx]
		name, _ := meta.StringAt(p.NameIndex)
		t, ok := img.TypeAtIndex(p.TypeIndex)
		typeName := "object"
		if ok {
			if n, err := r.TypeName(t, false, false); err == nil {
				typeName = byRefPrefix(t) + n
			}
		}
		parts = append(parts, fmt.Sprintf("%s %s", typeName, name))
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// headerField is a buildHeaderStructs-internal field record: it carries the
// embed target (if the field is a TypeValueType embedded by value) so the
// dependency graph can be built before any text is rendered.
type headerField struct {
	field        output.HeaderField
	embedOf      int32
	hasEmbedOf   bool
	pointerTo    int32
	hasPointerTo bool
}

// buildHeaderStructs resolves every TypeDefinition's fields to either a
// primitive C type, a pointer to another generated struct (reference-typed
// fields), or that struct embedded by value (TypeValueType fields), then
// topologically orders the value-embedding structs so a struct's embedded
// members are always fully defined above it. A cycle in that dependency
// graph can't occur in valid IL2CPP metadata (a value type cannot contain
// itself), but is broken defensively by demoting the back-edge field to a
// pointer against its forward declaration, which needs no definition.
func buildHeaderStructs(meta *metadata.Image, img *executor.Image, r *executor.Resolver, types []output.TypeEntry) []output.HeaderStruct {
	names := make(map[int32]string, len(meta.TypeDefinitions))
	fieldsByIdx := make(map[int32][]headerField, len(meta.TypeDefinitions))
	order := make([]int32, 0, len(meta.TypeDefinitions))

	for i := range meta.TypeDefinitions {
		td := &meta.TypeDefinitions[i]
		name, err := r.TypeDefName(td, int32(i), true, true)
		if err != nil {
			continue
		}
		idx := int32(i)
		names[idx] = sanitizeStructName(name)
		order = append(order, idx)

		var fields []headerField
		for j := int32(0); j < int32(td.FieldCount); j++ {
			fi := td.FieldStart + j
			f, err := meta.FieldAt(fi)
			if err != nil {
				continue
			}
			fname, _ := meta.StringAt(f.NameIndex)
			hf := headerField{field: output.HeaderField{Name: fname}}

			t, ok := img.TypeAtIndex(f.TypeIndex)
			isStatic := ok && t.Attrs&fieldAttributeStatic != 0
			if off, okOff := img.FieldOffset(idx, j, fi, td.IsValueType(), isStatic); okOff {
				hf.field.Comment = fmt.Sprintf("0x%X", off)
			}
			switch {
			case !ok:
				hf.field.CType = "void*"
			case t.TypeKind == registration.TypeValueType:
				if targetIdx, ok := r.TypeDefinitionIndexFor(t); ok && targetIdx != idx {
					hf.embedOf, hf.hasEmbedOf = targetIdx, true
				} else {
					hf.field.CType = output.CTypeName(t.TypeKind)
				}
			case t.TypeKind == registration.TypeClass || t.TypeKind == registration.TypeGenericInst:
				// Pointer to another generated struct, resolved in the
				// render pass below once every struct's name is known.
				// A pointer needs only a forward declaration, not a
				// dependency edge, so it never sets hasEmbedOf.
				if targetIdx, ok := r.TypeDefinitionIndexFor(t); ok {
					hf.pointerTo, hf.hasPointerTo = targetIdx, true
				} else {
					hf.field.CType = "Il2CppObject*"
				}
			default:
				hf.field.CType = output.CTypeName(t.TypeKind)
			}
			fields = append(fields, hf)
		}
		fieldsByIdx[idx] = fields
	}

	// Second pass: render pointer-typed reference fields now that every
	// struct's name is known, and record value-embed dependency edges.
	deps := make(map[int32][]int32, len(order))
	for _, idx := range order {
		fields := fieldsByIdx[idx]
		for k := range fields {
			hf := &fields[k]
			if hf.hasPointerTo {
				if name, ok := names[hf.pointerTo]; ok {
					hf.field.CType = name + "_o*"
				} else {
					hf.field.CType = "Il2CppObject*"
				}
			}
			if hf.hasEmbedOf {
				deps[idx] = append(deps[idx], hf.embedOf)
			}
		}
	}

	sorted, broken := topoSortStructs(order, deps)

	structs := make([]output.HeaderStruct, 0, len(sorted))
	for _, idx := range sorted {
		fields := fieldsByIdx[idx]
		out := make([]output.HeaderField, 0, len(fields))
		for _, hf := range fields {
			field := hf.field
			if hf.hasEmbedOf {
				name, ok := names[hf.embedOf]
				switch {
				case !ok:
					field.CType = "void*"
				case broken[edge{idx, hf.embedOf}]:
					// Cycle-breaking: this struct can't be fully defined
					// before idx without a loop, so fall back to a
					// pointer to its (forward-declared) incomplete type.
					field.CType = name + "_o*"
				default:
					field.CType = name
				}
			}
			out = append(out, field)
		}
		structs = append(structs, output.HeaderStruct{Name: names[idx], Fields: out})
	}
	return structs
}

// edge identifies one struct's embed-by-value dependency on another, used to
// record which edges topoSortStructs had to break.
type edge struct {
	from, to int32
}

// topoSortStructs orders idxs so that every dependency in deps[idx] (structs
// idx embeds by value) appears before idx. A cycle is broken by dropping the
// back-edge that would close it; the returned set names every edge dropped
// this way, so the caller can render that one field as a pointer instead of
// a full embed.
func topoSortStructs(idxs []int32, deps map[int32][]int32) ([]int32, map[edge]bool) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[int32]int, len(idxs))
	sorted := make([]int32, 0, len(idxs))
	broken := make(map[edge]bool)

	var visit func(idx int32)
	visit = func(idx int32) {
		switch state[idx] {
		case done:
			return
		case visiting:
			return
		}
		state[idx] = visiting
		for _, dep := range deps[idx] {
			if state[dep] == visiting {
				broken[edge{idx, dep}] = true
				continue
			}
			visit(dep)
		}
		state[idx] = done
		sorted = append(sorted, idx)
	}
	for _, idx := range idxs {
		visit(idx)
	}
	return sorted, broken
}

// sanitizeStructName strips characters C struct tags cannot carry (generic
// brackets, dots from nested-type qualification) in favor of underscores.
func sanitizeStructName(name string) string {
	out := make([]byte, 0, len(name))
	for _, c := range []byte(name) {
		switch {
		case c == '.' || c == '<' || c == '>' || c == ',' || c == ' ' || c == '[' || c == ']' || c == '*':
			out = append(out, '_')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

func buildScriptData(meta *metadata.Image, img *executor.Image, r *executor.Resolver) *output.ScriptData {
	data := &output.ScriptData{}

	for i := range meta.TypeDefinitions {
		td := &meta.TypeDefinitions[i]
		idx := int32(i)
		im, _ := imageOf(meta, idx)
		imgName := imageName(meta, im)

		name, err := r.TypeDefName(td, idx, true, true)
		if err != nil {
			continue
		}

		for j := int32(0); j < int32(td.MethodCount); j++ {
			midx := td.MethodStart + j
			m, err := meta.MethodAt(midx)
			if err != nil {
				continue
			}
			va, err := r.MethodPointer(imgName, m.MethodIndex, m.Token)
			if err != nil || va == 0 {
				continue
			}
			mname, _ := meta.StringAt(m.NameIndex)
			params := buildParameterList(meta, img, r, m)
			retType, ok := img.TypeAtIndex(m.ReturnType)
			retName := "void"
			if ok {
				if n, err := r.TypeName(retType, true, false); err == nil {
					retName = byRefPrefix(retType) + n
				}
			}
			sig := fmt.Sprintf("%s.%s(%s)", name, mname, params)
			data.ScriptMethod = append(data.ScriptMethod, output.ScriptMethod{
				Address:       va,
				Name:          sig,
				Signature:     sig,
				TypeSignature: retName,
			})
		}
	}

	addMetadataUsages(meta, img, r, data)

	data.CollectAddresses()
	return data
}

// addMetadataUsages walks Il2CppMetadataRegistration.metadataUsages via each
// MetadataUsagePair's DestinationIndex/EncodedSourceIndex, populating
// ScriptString, ScriptMetadata, and ScriptMetadataMethod. Only versions
// 19-24.5 carry this table (see internal/metadata/decode.go); versions >=27
// resolve usage sites a different way this repository does not attempt to
// reverse-engineer, so the walk is a no-op there and those arrays stay empty.
func addMetadataUsages(meta *metadata.Image, img *executor.Image, r *executor.Resolver, data *output.ScriptData) {
	if len(meta.MetadataUsagePairs) == 0 || len(img.MetadataUsages) == 0 {
		return
	}
	for _, pair := range meta.MetadataUsagePairs {
		if pair.DestinationIndex < 0 || int(pair.DestinationIndex) >= len(img.MetadataUsages) {
			continue
		}
		addr := img.MetadataUsages[pair.DestinationIndex]
		if addr == 0 {
			continue
		}
		kind, idx := metadata.DecodeUsageSourceIndex(pair.EncodedSourceIndex, img.Version)
		switch kind {
		case metadata.UsageKindClass:
			addClassUsage(meta, r, data, idx, addr)
		case metadata.UsageKindField:
			addFieldUsage(meta, r, data, idx, addr)
		case metadata.UsageKindStringLiteral:
			addStringLiteralUsage(meta, data, idx, addr)
		case metadata.UsageKindMethodDef:
			addMethodDefUsage(meta, r, data, idx, addr)
		case metadata.UsageKindMethodRef:
			addMethodRefUsage(meta, img, data, idx, addr)
		}
	}
}

func addClassUsage(meta *metadata.Image, r *executor.Resolver, data *output.ScriptData, idx int32, addr uint64) {
	if idx < 0 || int(idx) >= len(meta.TypeDefinitions) {
		return
	}
	td := &meta.TypeDefinitions[idx]
	name, err := r.TypeDefName(td, idx, true, true)
	if err != nil {
		return
	}
	data.ScriptMetadata = append(data.ScriptMetadata, output.ScriptMetadata{Address: addr, Name: name + "_TypeInfo"})
}

func addFieldUsage(meta *metadata.Image, r *executor.Resolver, data *output.ScriptData, idx int32, addr uint64) {
	if idx < 0 || int(idx) >= len(meta.FieldRefs) {
		return
	}
	fr := meta.FieldRefs[idx]
	if fr.TypeIndex < 0 || int(fr.TypeIndex) >= len(meta.TypeDefinitions) {
		return
	}
	td := &meta.TypeDefinitions[fr.TypeIndex]
	typeName, err := r.TypeDefName(td, fr.TypeIndex, true, true)
	if err != nil {
		return
	}
	f, err := meta.FieldAt(td.FieldStart + fr.FieldIndex)
	if err != nil {
		return
	}
	fname, _ := meta.StringAt(f.NameIndex)
	data.ScriptMetadata = append(data.ScriptMetadata, output.ScriptMetadata{Address: addr, Name: typeName + "." + fname})
}

func addStringLiteralUsage(meta *metadata.Image, data *output.ScriptData, idx int32, addr uint64) {
	v, err := meta.StringLiteralValue(int(idx))
	if err != nil {
		return
	}
	data.ScriptString = append(data.ScriptString, output.ScriptString{Address: addr, Value: v})
}

func addMethodDefUsage(meta *metadata.Image, r *executor.Resolver, data *output.ScriptData, idx int32, addr uint64) {
	m, err := meta.MethodAt(idx)
	if err != nil {
		return
	}
	if m.DeclaringType < 0 || int(m.DeclaringType) >= len(meta.TypeDefinitions) {
		return
	}
	td := &meta.TypeDefinitions[m.DeclaringType]
	typeName, err := r.TypeDefName(td, m.DeclaringType, true, true)
	if err != nil {
		return
	}
	mname, _ := meta.StringAt(m.NameIndex)
	im, _ := imageOf(meta, m.DeclaringType)
	methodVA, _ := r.MethodPointer(imageName(meta, im), m.MethodIndex, m.Token)
	data.ScriptMetadataMethod = append(data.ScriptMetadataMethod, output.ScriptMetadataMethod{
		Address:       addr,
		Name:          typeName + "." + mname,
		MethodAddress: methodVA,
	})
}

// addMethodRefUsage handles a usage site referring to a generic method
// instantiation (Il2CppMethodSpec), resolved the same way
// Image.MethodSpecGenericMethodPointer already resolves generic method
// invocations elsewhere in the executor.
func addMethodRefUsage(meta *metadata.Image, img *executor.Image, data *output.ScriptData, idx int32, addr uint64) {
	if idx < 0 || int(idx) >= len(img.MethodSpecs) {
		return
	}
	spec := img.MethodSpecs[idx]
	m, err := meta.MethodAt(spec.MethodDefinitionIndex)
	if err != nil {
		return
	}
	if m.DeclaringType < 0 || int(m.DeclaringType) >= len(meta.TypeDefinitions) {
		return
	}
	mname, _ := meta.StringAt(m.NameIndex)
	methodVA := img.MethodSpecGenericMethodPointer[int(idx)]
	data.ScriptMetadataMethod = append(data.ScriptMetadataMethod, output.ScriptMetadataMethod{
		Address:       addr,
		Name:          mname,
		MethodAddress: methodVA,
	})
}

func buildStringLiterals(meta *metadata.Image) []output.StringLiteralEntry {
	entries := make([]output.StringLiteralEntry, 0, len(meta.StringLiterals))
	for i := range meta.StringLiterals {
		v, err := meta.StringLiteralValue(i)
		if err != nil {
			continue
		}
		entries = append(entries, output.StringLiteralEntry{
			Index:  i,
			Offset: meta.StringLiterals[i].DataIndex,
			Length: meta.StringLiterals[i].Length,
			Value:  v,
		})
	}
	return entries
}
