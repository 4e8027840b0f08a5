package metadata

// ImageDefinition describes one assembly image (a managed DLL) within the
// metadata file.
type ImageDefinition struct {
	NameIndex         int32
	AssemblyIndex     int32
	TypeStart         int32
	TypeCount         int32
	ExportedTypeStart int32 `ver:"min=24"`
	ExportedTypeCount int32 `ver:"min=24"`
	EntryPointIndex   int32
	Token             int32 `ver:"min=19"`
	CustomAttributeStart int32 `ver:"min=24.1"`
	CustomAttributeCount int32 `ver:"min=24.1"`
}

// AssemblyNameDefinition is the strong-name portion of an assembly record.
type AssemblyNameDefinition struct {
	NameIndex       int32
	CultureIndex    int32
	HashValueIndex  int32 `ver:"max=24.3"`
	PublicKeyIndex  int32
	HashAlg         int32
	HashLen         int32
	Flags           int32
	Major           int32
	Minor           int32
	Build           int32
	Revision        int32
	PublicKeyToken  [8]byte
}

// AssemblyDefinition ties an ImageDefinition to its strong name and
// referenced-assembly range.
type AssemblyDefinition struct {
	ImageIndex              int32
	Token                   int32 `ver:"min=24.1"`
	CustomAttributeIndex    int32 `ver:"max=24"`
	ReferencedAssemblyStart int32 `ver:"min=20"`
	ReferencedAssemblyCount int32 `ver:"min=20"`
	Name                    AssemblyNameDefinition
}

// TypeDefinition is a class, struct, enum, or interface.
type TypeDefinition struct {
	NameIndex           int32
	NamespaceIndex      int32
	CustomAttributeIndex int32 `ver:"max=24"`
	ByvalTypeIndex      int32
	ByrefTypeIndex      int32 `ver:"max=24.5"`
	DeclaringTypeIndex  int32
	ParentIndex         int32
	ElementTypeIndex    int32
	RgctxStartIndex     int32 `ver:"max=24.1"`
	RgctxCount          int32 `ver:"max=24.1"`
	GenericContainerIndex int32
	DelegateWrapperFromManagedToNativeIndex int32 `ver:"max=22"`
	MarshalingFunctionsIndex                int32 `ver:"max=22"`
	CcwFunctionIndex int32 `ver:"min=21,max=22"`
	GuidIndex        int32 `ver:"min=21,max=22"`
	Flags            int32
	FieldStart            int32
	MethodStart           int32
	EventStart            int32
	PropertyStart         int32
	NestedTypesStart      int32
	InterfacesStart       int32
	VtableStart           int32
	InterfaceOffsetsStart int32
	MethodCount            uint16
	PropertyCount          uint16
	FieldCount             uint16
	EventCount             uint16
	NestedTypeCount        uint16
	VtableCount            uint16
	InterfacesCount        uint16
	InterfaceOffsetsCount  uint16
	Bitfield int32
	Token    int32 `ver:"min=19"`
}

// IsValueType reports whether the type is a struct (or other value type).
func (t *TypeDefinition) IsValueType() bool { return t.Bitfield&0x1 == 1 }

// IsEnum reports whether the type is an enum.
func (t *TypeDefinition) IsEnum() bool { return (t.Bitfield>>1)&0x1 == 1 }

// MethodDefinition is one method slot of a TypeDefinition.
type MethodDefinition struct {
	NameIndex              int32
	DeclaringType           int32
	ReturnType              int32
	ReturnParameterToken    int32 `ver:"min=31"`
	ParameterStart          int32
	CustomAttributeIndex    int32 `ver:"max=24"`
	GenericContainerIndex   int32
	MethodIndex             int32 `ver:"max=24.1"`
	InvokerIndex            int32 `ver:"max=24.1"`
	DelegateWrapperIndex    int32 `ver:"max=24.1"`
	RgctxStartIndex         int32 `ver:"max=24.1"`
	RgctxCount              int32 `ver:"max=24.1"`
	Token  uint32
	Token2 uint32
	Flags  uint16
	Iflags uint16
	Slot   uint16
	ParameterCount uint16
}

// ParameterDefinition is one formal parameter of a MethodDefinition.
type ParameterDefinition struct {
	NameIndex            int32
	Token                int32
	CustomAttributeIndex int32 `ver:"max=24"`
	TypeIndex            int32
}

// FieldDefinition is one field slot of a TypeDefinition.
type FieldDefinition struct {
	NameIndex            int32
	TypeIndex            int32
	CustomAttributeIndex int32 `ver:"max=24"`
	Token                int32 `ver:"min=19"`
}

// FieldDefaultValue associates a field with its constant initializer data.
type FieldDefaultValue struct {
	FieldIndex int32
	TypeIndex  int32
	DataIndex  int32
}

// ParameterDefaultValue associates a parameter with its default-argument data.
type ParameterDefaultValue struct {
	ParameterIndex int32
	TypeIndex      int32
	DataIndex      int32
}

// PropertyDefinition is one property slot of a TypeDefinition.
type PropertyDefinition struct {
	NameIndex            int32
	Get                  int32
	Set                  int32
	Attrs                int32
	CustomAttributeIndex int32 `ver:"max=24"`
	Token                int32 `ver:"min=19"`
}

// EventDefinition is one event slot of a TypeDefinition.
type EventDefinition struct {
	NameIndex            int32
	TypeIndex            int32
	Add                  int32
	Remove               int32
	Raise                int32
	CustomAttributeIndex int32 `ver:"max=24"`
	Token                int32 `ver:"min=19"`
}

// GenericContainer holds the type-argument count and parameter range for a
// generic type or method.
type GenericContainer struct {
	OwnerIndex             int32
	TypeArgc               int32
	IsMethod               int32
	GenericParameterStart  int32
}

// GenericParameter is one formal type parameter within a GenericContainer.
type GenericParameter struct {
	OwnerIndex       int32
	NameIndex        uint32
	ConstraintsStart int16
	ConstraintsCount int16
	Num              uint16
	Flags            uint16
}

// CustomAttributeTypeRange is the pre-v29 custom-attribute index record.
type CustomAttributeTypeRange struct {
	Token int32 `ver:"min=24.1"`
	Start int32
	Count int32
}

// CustomAttributeDataRange is the v29+ custom-attribute index record.
type CustomAttributeDataRange struct {
	Token       uint32
	StartOffset uint32
}

// MetadataUsageList is one method's contiguous run of usage-pair entries
// (versions 17-26).
type MetadataUsageList struct {
	Start int32
	Count int32
}

// MetadataUsagePair links a usage-site slot to an encoded source index.
type MetadataUsagePair struct {
	DestinationIndex  int32
	EncodedSourceIndex int32
}

// StringLiteral is one entry of the string-literal table: a length and an
// offset into the string-literal data blob.
type StringLiteral struct {
	Length    int32
	DataIndex int32
}

// FieldRef resolves a field by (declaring type, field index) pair.
type FieldRef struct {
	TypeIndex  int32
	FieldIndex int32
}

// NestedTypeIndex, InterfaceIndex, VTableMethodIndex, and InterfaceOffset are
// the dense int32 arrays referenced by TypeDefinition's *_start/*_count pairs.
type (
	NestedTypeIndex   = int32
	InterfaceIndex    = int32
	VTableMethodIndex = int32
)

// InterfaceOffsetPair maps an implemented interface to its vtable offset.
type InterfaceOffsetPair struct {
	InterfaceTypeIndex int32
	Offset             int32
}

// GenericParameterConstraint is a dense int32 array of type indices
// referenced by GenericParameter.ConstraintsStart/Count.
type GenericParameterConstraint = int32
