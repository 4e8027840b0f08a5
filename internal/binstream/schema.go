package binstream

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// fieldSpec is one field of a compiled Layout: which struct field it maps to
// and how many bytes it occupies for a given metadata version.
type fieldSpec struct {
	index int
	size  int
}

// Layout is a per-version compilation of a record type's on-disk shape. It
// is built once per (type, version) pair and cached, since the same record
// type is decoded thousands of times per metadata table.
type Layout struct {
	fields []fieldSpec
	size   int
}

// Size returns the total encoded size in bytes of a record under this layout.
func (l *Layout) Size() int { return l.size }

type layoutKey struct {
	typ reflect.Type
	ver float64
}

var layoutCache sync.Map // layoutKey -> *Layout

// CompileLayout computes (or retrieves from cache) the field layout of
// recordType at the given metadata version. Struct fields are tagged
// `ver:"min=19,max=24.1"` to mark version-conditional presence; untagged
// fields are always present. Fields are read in declaration order.
func CompileLayout(recordType reflect.Type, version float64) (*Layout, error) {
	key := layoutKey{recordType, version}
	if v, ok := layoutCache.Load(key); ok {
		return v.(*Layout), nil
	}
	layout, err := compileLayout(recordType, version)
	if err != nil {
		return nil, err
	}
	actual, _ := layoutCache.LoadOrStore(key, layout)
	return actual.(*Layout), nil
}

func compileLayout(t reflect.Type, version float64) (*Layout, error) {
	l := &Layout{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		minVer, maxVer := parseVersionTag(f.Tag.Get("ver"))
		if version < minVer || (maxVer > 0 && version > maxVer) {
			continue
		}
		size, err := fieldSize(f.Type, version)
		if err != nil {
			return nil, fmt.Errorf("binstream: field %s.%s: %w", t.Name(), f.Name, err)
		}
		l.fields = append(l.fields, fieldSpec{index: i, size: size})
		l.size += size
	}
	return l, nil
}

func parseVersionTag(tag string) (min, max float64) {
	if tag == "" {
		return 0, 0
	}
	for _, part := range strings.Split(tag, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		val, _ := strconv.ParseFloat(kv[1], 64)
		switch strings.TrimSpace(kv[0]) {
		case "min":
			min = val
		case "max":
			max = val
		}
	}
	return
}

func fieldSize(t reflect.Type, version float64) (int, error) {
	switch t.Kind() {
	case reflect.Int8, reflect.Uint8, reflect.Bool:
		return 1, nil
	case reflect.Int16, reflect.Uint16:
		return 2, nil
	case reflect.Int32, reflect.Uint32, reflect.Float32:
		return 4, nil
	case reflect.Int64, reflect.Uint64, reflect.Float64:
		return 8, nil
	case reflect.Array:
		elemSize, err := fieldSize(t.Elem(), version)
		if err != nil {
			return 0, err
		}
		return elemSize * t.Len(), nil
	case reflect.Struct:
		// Nested records (e.g. an assembly's strong-name block) carry their
		// own version-conditional fields, so their size is a layout of their
		// own at the same version.
		nested, err := CompileLayout(t, version)
		if err != nil {
			return 0, err
		}
		return nested.Size(), nil
	default:
		return 0, fmt.Errorf("unsupported field kind %s", t.Kind())
	}
}

// Decode reads one record of the type pointed to by out, honoring the
// version-conditional field layout, and advances the cursor by Layout.Size()
// bytes.
func Decode(c *Cursor, out any, version float64) error {
	v := reflect.ValueOf(out)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("binstream: Decode requires a pointer to struct")
	}
	elem := v.Elem()
	layout, err := CompileLayout(elem.Type(), version)
	if err != nil {
		return err
	}
	for _, fs := range layout.fields {
		fv := elem.Field(fs.index)
		if err := decodeField(c, fv, version); err != nil {
			return fmt.Errorf("binstream: field %s: %w", elem.Type().Field(fs.index).Name, err)
		}
	}
	return nil
}

// DecodeArray reads count consecutive records into a freshly allocated slice.
// It mirrors the dense-array fast path of the metadata tables: elements are
// laid out back to back with no padding, so the whole array's byte length is
// count*layout.Size() and can be validated against the table's declared size
// before any per-record decode work happens.
func DecodeArray(c *Cursor, elemType reflect.Type, count int, version float64) (reflect.Value, error) {
	layout, err := CompileLayout(elemType, version)
	if err != nil {
		return reflect.Value{}, err
	}
	out := reflect.MakeSlice(reflect.SliceOf(elemType), count, count)
	for i := 0; i < count; i++ {
		elem := out.Index(i).Addr().Interface()
		if err := Decode(c, elem, version); err != nil {
			return reflect.Value{}, fmt.Errorf("binstream: element %d: %w", i, err)
		}
	}
	_ = layout
	return out, nil
}

func decodeField(c *Cursor, fv reflect.Value, version float64) error {
	switch fv.Kind() {
	case reflect.Uint8:
		b, err := c.ReadU8()
		if err != nil {
			return err
		}
		fv.SetUint(uint64(b))
	case reflect.Int8:
		b, err := c.ReadU8()
		if err != nil {
			return err
		}
		fv.SetInt(int64(int8(b)))
	case reflect.Bool:
		b, err := c.ReadU8()
		if err != nil {
			return err
		}
		fv.SetBool(b != 0)
	case reflect.Uint16:
		u, err := c.ReadU16()
		if err != nil {
			return err
		}
		fv.SetUint(uint64(u))
	case reflect.Int16:
		u, err := c.ReadU16()
		if err != nil {
			return err
		}
		fv.SetInt(int64(int16(u)))
	case reflect.Uint32:
		u, err := c.ReadU32()
		if err != nil {
			return err
		}
		fv.SetUint(uint64(u))
	case reflect.Int32:
		u, err := c.ReadU32()
		if err != nil {
			return err
		}
		fv.SetInt(int64(int32(u)))
	case reflect.Uint64:
		u, err := c.ReadU64()
		if err != nil {
			return err
		}
		fv.SetUint(u)
	case reflect.Int64:
		u, err := c.ReadU64()
		if err != nil {
			return err
		}
		fv.SetInt(int64(u))
	case reflect.Array:
		for i := 0; i < fv.Len(); i++ {
			if err := decodeField(c, fv.Index(i), version); err != nil {
				return err
			}
		}
	case reflect.Struct:
		return Decode(c, fv.Addr().Interface(), version)
	default:
		return fmt.Errorf("binstream: unsupported field kind %s", fv.Kind())
	}
	return nil
}
