package executor

import (
	"fmt"

	"il2cppdump/internal/registration"
)

// loadGenerics reads the generic-instance pointer table and every generic
// method/class instantiation hanging off MetadataRegistration, then builds
// the method-definition -> method-spec and method-spec -> code-pointer
// lookup tables.
func (img *Image) loadGenerics() error {
	mr := img.MetaReg
	var err error

	img.GenericInstPointers, err = registration.ReadPointerTable(img.View, mr.GenericInsts, int(mr.GenericInstsCount))
	if err != nil {
		return fmt.Errorf("executor: generic insts: %w", err)
	}
	for _, va := range img.GenericInstPointers {
		if _, err := img.GenericInstAt(va); err != nil {
			return fmt.Errorf("executor: generic inst at %#x: %w", va, err)
		}
	}

	img.GenericMethodTable, err = registration.ReadGenericMethodTable(img.View, mr.GenericMethodTable, int(mr.GenericMethodTableCount), img.Version)
	if err != nil {
		return fmt.Errorf("executor: generic method table: %w", err)
	}

	img.MethodSpecs, err = registration.ReadMethodSpecs(img.View, mr.MethodSpecs, int(mr.MethodSpecsCount))
	if err != nil {
		return fmt.Errorf("executor: method specs: %w", err)
	}

	for _, entry := range img.GenericMethodTable {
		idx := int(entry.GenericMethodIndex)
		if idx < 0 || idx >= len(img.MethodSpecs) {
			return fmt.Errorf("executor: generic method table entry references out-of-range method spec %d", idx)
		}
		spec := img.MethodSpecs[idx]
		img.MethodDefinitionMethodSpecs[spec.MethodDefinitionIndex] = append(
			img.MethodDefinitionMethodSpecs[spec.MethodDefinitionIndex], idx,
		)
		if methodIdx := int(entry.Indices.MethodIndex); methodIdx >= 0 && methodIdx < len(img.GenericMethodPointers) {
			img.MethodSpecGenericMethodPointer[idx] = img.GenericMethodPointers[methodIdx]
		}
	}
	return nil
}

// loadCodeGenModules reads the per-image CodeGenModule table (v24.2+): one
// module per image, with its method-pointer table and module name resolved
// from the image's virtual address space.
func (img *Image) loadCodeGenModules() error {
	cr := img.CodeReg
	modulePointers, err := registration.ReadPointerTable(img.View, cr.CodeGenModules, int(cr.CodeGenModulesCount))
	if err != nil {
		return fmt.Errorf("executor: code gen modules: %w", err)
	}

	for _, va := range modulePointers {
		module, err := registration.DecodeCodeGenModule(img.View, va, img.Version)
		if err != nil {
			return fmt.Errorf("executor: code gen module at %#x: %w", va, err)
		}
		name, err := img.readCString(module.ModuleNameVA)
		if err != nil {
			return fmt.Errorf("executor: code gen module name: %w", err)
		}
		img.CodeGenModules[name] = module

		var methodPtrs []uint64
		if module.MethodPointerCount > 0 {
			methodPtrs, err = registration.ReadPointerTable(img.View, module.MethodPointers, int(module.MethodPointerCount))
			if err != nil {
				methodPtrs = make([]uint64, module.MethodPointerCount)
			}
		}
		img.CodeGenModuleMethodPointers[name] = methodPtrs
	}
	return nil
}

func (img *Image) readCString(va uint64) (string, error) {
	off, err := img.View.VAToOffset(va)
	if err != nil {
		return "", err
	}
	data := img.View.Data
	end := int(off)
	for end < len(data) && data[end] != 0 {
		end++
	}
	return string(data[off:end]), nil
}
