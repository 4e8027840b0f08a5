package executor

import (
	"fmt"
	"reflect"
	"strings"

	"il2cppdump/internal/binstream"
	"il2cppdump/internal/metadata"
	"il2cppdump/internal/registration"
)

// typeNames maps primitive Il2CppTypeEnum values to their C# source names.
var typeNames = map[registration.TypeEnum]string{
	registration.TypeVoid:    "void",
	registration.TypeBoolean: "bool",
	registration.TypeChar:    "char",
	registration.TypeI1:      "sbyte",
	registration.TypeU1:      "byte",
	registration.TypeI2:      "short",
	registration.TypeU2:      "ushort",
	registration.TypeI4:      "int",
	registration.TypeU4:      "uint",
	registration.TypeI8:      "long",
	registration.TypeU8:      "ulong",
	registration.TypeR4:      "float",
	registration.TypeR8:      "double",
	registration.TypeString:  "string",
	registration.TypeI:       "IntPtr",
	registration.TypeU:       "UIntPtr",
	registration.TypeObject:  "object",
	registration.TypeTypedByref: "TypedReference",
}

// Resolver composes type, member, and generic-instantiation names the way
// the output stage needs them, caching every expensive lookup the way the
// original executor's per-kind dictionaries do.
type Resolver struct {
	img *Image

	typeNameCache      map[typeNameKey]string
	genericInstCache   map[uint64]string
	genericContCache   map[int32]string
	methodSpecNameCache map[int]methodSpecName
	typeDefNameCache   map[typeDefNameKey]string
}

type typeNameKey struct {
	datapoint    uint64
	bits         uint32
	addNamespace bool
	isNested     bool
}

type typeDefNameKey struct {
	index        int32
	addNamespace bool
	genericParam bool
}

type methodSpecName struct {
	TypeName   string
	MethodName string
}

// NewResolver builds a name resolver over an already-initialized Image.
func NewResolver(img *Image) *Resolver {
	return &Resolver{
		img:                 img,
		typeNameCache:       make(map[typeNameKey]string),
		genericInstCache:    make(map[uint64]string),
		genericContCache:    make(map[int32]string),
		methodSpecNameCache: make(map[int]methodSpecName),
		typeDefNameCache:    make(map[typeDefNameKey]string),
	}
}

// TypeName resolves an Il2CppType to its C#-style source name.
func (r *Resolver) TypeName(t *registration.Type, addNamespace, isNested bool) (string, error) {
	key := typeNameKey{t.Datapoint, t.Bits, addNamespace, isNested}
	if s, ok := r.typeNameCache[key]; ok {
		return s, nil
	}
	s, err := r.typeNameImpl(t, addNamespace, isNested)
	if err != nil {
		return "", err
	}
	r.typeNameCache[key] = s
	return s, nil
}

func (r *Resolver) typeNameImpl(t *registration.Type, addNamespace, isNested bool) (string, error) {
	switch t.TypeKind {
	case registration.TypeArray:
		at, err := registration.DecodeArrayType(r.img.View, t.Datapoint)
		if err != nil {
			return "object[]", nil
		}
		elem, ok := r.img.GetType(at.EtypeVA)
		if !ok {
			return "object[]", nil
		}
		name, err := r.TypeName(elem, addNamespace, false)
		if err != nil {
			return "", err
		}
		dims := strings.Repeat(",", int(at.Rank)-1)
		return fmt.Sprintf("%s[%s]", name, dims), nil

	case registration.TypeSzarray:
		elem, ok := r.img.GetType(t.Datapoint)
		if !ok {
			return "object[]", nil
		}
		name, err := r.TypeName(elem, addNamespace, false)
		if err != nil {
			return "", err
		}
		return name + "[]", nil

	case registration.TypePtr:
		elem, ok := r.img.GetType(t.Datapoint)
		if !ok {
			return "void*", nil
		}
		name, err := r.TypeName(elem, addNamespace, false)
		if err != nil {
			return "", err
		}
		return name + "*", nil

	case registration.TypeVar, registration.TypeMvar:
		param, err := r.genericParameterFromType(t)
		if err != nil || param == nil {
			return "T", nil
		}
		name, err := r.img.Meta.StringAt(int32(param.NameIndex))
		if err != nil {
			return "T", nil
		}
		return name, nil

	case registration.TypeClass, registration.TypeValueType, registration.TypeGenericInst:
		return r.classLikeTypeName(t, addNamespace, isNested)

	default:
		if name, ok := typeNames[t.TypeKind]; ok {
			return name, nil
		}
		return fmt.Sprintf("UnknownType(%d)", t.TypeKind), nil
	}
}

func (r *Resolver) classLikeTypeName(t *registration.Type, addNamespace, isNested bool) (string, error) {
	var typeDef *metadata.TypeDefinition
	var genericClass *registration.GenericClass
	var err error

	if t.TypeKind == registration.TypeGenericInst {
		genericClass, err = r.img.GenericClassAt(t.Datapoint)
		if err != nil {
			return "UnknownType", nil
		}
		typeDef, err = r.genericClassTypeDefinition(genericClass)
	} else {
		typeDef, err = r.typeDefinitionFromType(t)
	}
	if err != nil || typeDef == nil {
		return "UnknownType", nil
	}

	var result string
	if typeDef.DeclaringTypeIndex != -1 {
		declaring, ok := r.img.typeAtIndex(typeDef.DeclaringTypeIndex)
		if !ok {
			return "UnknownType", nil
		}
		name, err := r.TypeName(declaring, addNamespace, true)
		if err != nil {
			return "", err
		}
		result = name + "."
	} else if addNamespace {
		ns, err := r.img.Meta.StringAt(typeDef.NamespaceIndex)
		if err == nil && ns != "" {
			result = ns + "."
		}
	}

	typeName, err := r.img.Meta.StringAt(typeDef.NameIndex)
	if err != nil {
		return "", err
	}
	typeName = stripGenericArity(typeName)
	result += typeName

	if isNested {
		return result, nil
	}

	if genericClass != nil {
		gi, err := r.img.GenericInstAt(genericClass.ClassInstVA)
		if err == nil {
			params, err := r.genericInstParams(gi)
			if err == nil {
				result += params
			}
		}
	} else if typeDef.GenericContainerIndex >= 0 {
		if int(typeDef.GenericContainerIndex) < len(r.img.Meta.GenericContainers) {
			gc := &r.img.Meta.GenericContainers[typeDef.GenericContainerIndex]
			params, err := r.genericContainerParams(gc)
			if err == nil {
				result += params
			}
		}
	}
	return result, nil
}

func stripGenericArity(name string) string {
	if i := strings.IndexByte(name, '`'); i != -1 {
		return name[:i]
	}
	return name
}

// TypeDefName resolves a TypeDefinition directly, without going through an
// Il2CppType wrapper — used for declaring-type names where no instantiated
// Il2CppType is at hand (method/field owners, etc).
func (r *Resolver) TypeDefName(td *metadata.TypeDefinition, tdIndex int32, addNamespace, genericParameter bool) (string, error) {
	key := typeDefNameKey{tdIndex, addNamespace, genericParameter}
	if s, ok := r.typeDefNameCache[key]; ok {
		return s, nil
	}

	var prefix string
	if td.DeclaringTypeIndex != -1 {
		declaring, ok := r.img.typeAtIndex(td.DeclaringTypeIndex)
		if !ok {
			return "", fmt.Errorf("executor: declaring type index %d out of range", td.DeclaringTypeIndex)
		}
		name, err := r.TypeName(declaring, addNamespace, true)
		if err != nil {
			return "", err
		}
		prefix = name + "."
	} else if addNamespace {
		ns, err := r.img.Meta.StringAt(td.NamespaceIndex)
		if err == nil && ns != "" {
			prefix = ns + "."
		}
	}

	typeName, err := r.img.Meta.StringAt(td.NameIndex)
	if err != nil {
		return "", err
	}

	if td.GenericContainerIndex >= 0 {
		typeName = stripGenericArity(typeName)
		if genericParameter && int(td.GenericContainerIndex) < len(r.img.Meta.GenericContainers) {
			gc := &r.img.Meta.GenericContainers[td.GenericContainerIndex]
			params, err := r.genericContainerParams(gc)
			if err == nil {
				typeName += params
			}
		}
	}

	result := prefix + typeName
	r.typeDefNameCache[key] = result
	return result, nil
}

func (r *Resolver) genericInstParams(gi *registration.GenericInst) (string, error) {
	if s, ok := r.genericInstCache[gi.TypeArgvVA]; ok {
		return s, nil
	}
	argVAs, err := gi.TypeArgs(r.img.View)
	if err != nil {
		return "", err
	}
	names := make([]string, 0, len(argVAs))
	for _, va := range argVAs {
		t, ok := r.img.GetType(va)
		if !ok {
			names = append(names, "?")
			continue
		}
		name, err := r.TypeName(t, false, false)
		if err != nil {
			return "", err
		}
		names = append(names, name)
	}
	result := "<" + strings.Join(names, ", ") + ">"
	r.genericInstCache[gi.TypeArgvVA] = result
	return result, nil
}

func (r *Resolver) genericContainerParams(gc *metadata.GenericContainer) (string, error) {
	if s, ok := r.genericContCache[gc.GenericParameterStart]; ok {
		return s, nil
	}
	names := make([]string, 0, gc.TypeArgc)
	for i := int32(0); i < gc.TypeArgc; i++ {
		idx := gc.GenericParameterStart + i
		if int(idx) >= len(r.img.Meta.GenericParameters) {
			return "", fmt.Errorf("executor: generic parameter index %d out of range", idx)
		}
		param := &r.img.Meta.GenericParameters[idx]
		name, err := r.img.Meta.StringAt(int32(param.NameIndex))
		if err != nil {
			return "", err
		}
		names = append(names, name)
	}
	result := "<" + strings.Join(names, ", ") + ">"
	r.genericContCache[gc.GenericParameterStart] = result
	return result, nil
}

// MethodSpecName resolves a generic method instantiation to its
// (declaring-type-name, method-name) pair, each carrying any generic
// arguments the instantiation supplies.
func (r *Resolver) MethodSpecName(specIndex int, addNamespace bool) (string, string, error) {
	if cached, ok := r.methodSpecNameCache[specIndex]; ok {
		return cached.TypeName, cached.MethodName, nil
	}
	if specIndex < 0 || specIndex >= len(r.img.MethodSpecs) {
		return "", "", fmt.Errorf("executor: method spec index %d out of range", specIndex)
	}
	spec := r.img.MethodSpecs[specIndex]

	methodDef, err := r.img.Meta.MethodAt(spec.MethodDefinitionIndex)
	if err != nil {
		return "", "", err
	}
	typeDef, err := r.img.Meta.TypeDefinitionAt(methodDef.DeclaringType)
	if err != nil {
		return "", "", err
	}
	typeName, err := r.TypeDefName(typeDef, methodDef.DeclaringType, addNamespace, false)
	if err != nil {
		return "", "", err
	}

	if spec.ClassIndexIndex != -1 {
		if int(spec.ClassIndexIndex) >= len(r.img.GenericInstPointers) {
			return "", "", fmt.Errorf("executor: method spec class inst index %d out of range", spec.ClassIndexIndex)
		}
		gi, err := r.img.GenericInstAt(r.img.GenericInstPointers[spec.ClassIndexIndex])
		if err != nil {
			return "", "", err
		}
		params, err := r.genericInstParams(gi)
		if err != nil {
			return "", "", err
		}
		typeName += params
	}

	methodName, err := r.img.Meta.StringAt(methodDef.NameIndex)
	if err != nil {
		return "", "", err
	}

	if spec.MethodIndexIndex != -1 {
		if int(spec.MethodIndexIndex) >= len(r.img.GenericInstPointers) {
			return "", "", fmt.Errorf("executor: method spec method inst index %d out of range", spec.MethodIndexIndex)
		}
		gi, err := r.img.GenericInstAt(r.img.GenericInstPointers[spec.MethodIndexIndex])
		if err != nil {
			return "", "", err
		}
		params, err := r.genericInstParams(gi)
		if err != nil {
			return "", "", err
		}
		methodName += params
	}

	r.methodSpecNameCache[specIndex] = methodSpecName{typeName, methodName}
	return typeName, methodName, nil
}

func (r *Resolver) genericClassTypeDefinition(gc *registration.GenericClass) (*metadata.TypeDefinition, error) {
	if r.img.Version >= 27 {
		t, ok := r.img.GetType(gc.Type)
		if !ok {
			return nil, fmt.Errorf("executor: generic class type %#x not in type table", gc.Type)
		}
		return r.typeDefinitionFromType(t)
	}
	if gc.TypeDefinitionIndex < 0 || gc.TypeDefinitionIndex == 0xFFFFFFFF {
		return nil, fmt.Errorf("executor: generic class has no type definition index")
	}
	return r.img.Meta.TypeDefinitionAt(int32(gc.TypeDefinitionIndex))
}

func (r *Resolver) typeDefinitionFromType(t *registration.Type) (*metadata.TypeDefinition, error) {
	idx, err := r.typeDefinitionIndexFromType(t)
	if err != nil {
		return nil, err
	}
	return r.img.Meta.TypeDefinitionAt(idx)
}

func (r *Resolver) typeDefinitionIndexFromType(t *registration.Type) (int32, error) {
	if r.img.Version >= 27 && r.img.IsDumped {
		return r.typeDefinitionIndexFromHandle(t.Datapoint)
	}
	return int32(t.Datapoint), nil
}

func (r *Resolver) typeDefinitionIndexFromHandle(handle uint64) (int32, error) {
	size := recordSize(reflect.TypeOf(metadata.TypeDefinition{}), r.img.Version)
	if size <= 0 {
		return 0, fmt.Errorf("executor: cannot size TypeDefinition record")
	}
	offset := handle - r.img.ImageBase - uint64(r.img.Meta.Header.TypeDefinitionsOffset)
	return int32(offset / uint64(size)), nil
}

// TypeDefinitionIndexFor resolves a Class/ValueType/GenericInst-kind Type to
// the index of its underlying TypeDefinition in the metadata image. Callers
// outside the executor package (il2cpp.h struct generation in internal/dump)
// use this to order generated struct definitions by their embedding
// dependencies, which TypeName's string output alone cannot do.
func (r *Resolver) TypeDefinitionIndexFor(t *registration.Type) (int32, bool) {
	switch t.TypeKind {
	case registration.TypeGenericInst:
		gc, err := r.img.GenericClassAt(t.Datapoint)
		if err != nil {
			return 0, false
		}
		if r.img.Version >= 27 {
			inner, ok := r.img.GetType(gc.Type)
			if !ok {
				return 0, false
			}
			idx, err := r.typeDefinitionIndexFromType(inner)
			if err != nil || idx < 0 || int(idx) >= len(r.img.Meta.TypeDefinitions) {
				return 0, false
			}
			return idx, true
		}
		if gc.TypeDefinitionIndex < 0 || gc.TypeDefinitionIndex == 0xFFFFFFFF {
			return 0, false
		}
		return int32(gc.TypeDefinitionIndex), true
	case registration.TypeClass, registration.TypeValueType:
		idx, err := r.typeDefinitionIndexFromType(t)
		if err != nil || idx < 0 || int(idx) >= len(r.img.Meta.TypeDefinitions) {
			return 0, false
		}
		return idx, true
	default:
		return 0, false
	}
}

func (r *Resolver) genericParameterFromType(t *registration.Type) (*metadata.GenericParameter, error) {
	if r.img.Version >= 27 && r.img.IsDumped {
		size := recordSize(reflect.TypeOf(metadata.GenericParameter{}), r.img.Version)
		if size <= 0 {
			return nil, fmt.Errorf("executor: cannot size GenericParameter record")
		}
		offset := t.Datapoint - r.img.ImageBase - uint64(r.img.Meta.Header.GenericParametersOffset)
		index := int(offset / uint64(size))
		if index < 0 || index >= len(r.img.Meta.GenericParameters) {
			return nil, fmt.Errorf("executor: generic parameter handle out of range")
		}
		return &r.img.Meta.GenericParameters[index], nil
	}
	index := int(t.Datapoint)
	if index < 0 || index >= len(r.img.Meta.GenericParameters) {
		return nil, fmt.Errorf("executor: generic parameter index %d out of range", index)
	}
	return &r.img.Meta.GenericParameters[index], nil
}

func recordSize(t reflect.Type, version float64) int {
	l, err := binstream.CompileLayout(t, version)
	if err != nil {
		return 0
	}
	return l.Size()
}
