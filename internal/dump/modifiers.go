package dump

// Bit layouts below follow the standard CLI metadata TypeAttributes/
// MethodAttributes flag sets (ECMA-335 §II.23.1), which IL2CPP's
// Il2CppTypeDefinition.flags and Il2CppMethodDefinition.flags reuse
// verbatim.
const (
	typeVisibilityMask = 0x7
	typeInterface       = 0x20
	typeAbstract        = 0x80
	typeSealed          = 0x100
)

func typeVisibilityKeyword(flags int32) string {
	switch flags & typeVisibilityMask {
	case 0x1, 0x2: // Public, NestedPublic
		return "public"
	case 0x3, 0x4, 0x6: // NestedPrivate, NestedFamily, NestedFamANDAssem
		return "private"
	default:
		return "internal"
	}
}

func typeKindKeyword(flags int32, isValueType, isEnum bool) string {
	switch {
	case flags&typeInterface != 0:
		return "interface"
	case isEnum:
		return "enum"
	case isValueType:
		return "struct"
	default:
		return "class"
	}
}

func typeModifiers(flags int32) string {
	var mods string
	if flags&typeAbstract != 0 && flags&typeInterface == 0 {
		mods += "abstract "
	}
	if flags&typeSealed != 0 {
		mods += "sealed "
	}
	return mods
}

const (
	methodAccessMask = 0x7
	methodStatic     = 0x10
	methodVirtual    = 0x40
	methodAbstract   = 0x400
)

func methodAccessKeyword(flags uint16) string {
	switch flags & methodAccessMask {
	case 0x1: // Private
		return "private"
	case 0x4, 0x5: // Family, FamORAssem
		return "protected"
	case 0x6: // Public
		return "public"
	default:
		return "internal"
	}
}

func methodModifiers(flags uint16) string {
	var mods string
	if flags&methodStatic != 0 {
		mods += "static "
	}
	if flags&methodAbstract != 0 {
		mods += "abstract "
	} else if flags&methodVirtual != 0 {
		mods += "virtual "
	}
	return mods
}
