package devicetree

import (
	"errors"
	"fmt"

	"github.com/outpost-os/shieldmeta/internal/diag"
	"github.com/outpost-os/shieldmeta/internal/meta"
)

// Restrict returns the descriptor reduced to the peripherals the task
// declares, in declaration order. Memory regions are kept.
//
// Referencing an undescribed peripheral is a binding error. A bound
// peripheral with an empty or wrapping range is a parse error, and bound
// peripherals with overlapping address ranges are a consistency error.
func Restrict(hw *meta.HardwareDescriptor, devices []string) (*meta.HardwareDescriptor, error) {
	out := &meta.HardwareDescriptor{
		Arch:    hw.Arch,
		Regions: append([]meta.Region(nil), hw.Regions...),
	}

	var missing []string
	for _, id := range devices {
		p, ok := hw.Peripheral(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		p.Interrupts = append([]uint32(nil), p.Interrupts...)
		out.Peripherals = append(out.Peripherals, p)
	}
	if len(missing) > 0 {
		return nil, diag.New(diag.KindHardwareBinding,
			"task references peripherals absent from the hardware description").WithFields(missing...)
	}

	for _, p := range out.Peripherals {
		if err := checkRange(p.Base, p.Size); err != nil {
			return nil, diag.New(diag.KindHardwareParse, "peripheral %s: %v", p.ID, err).WithFields(p.ID)
		}
	}
	if err := checkOverlap(out.Peripherals); err != nil {
		return nil, err
	}
	return out, nil
}

func checkOverlap(periphs []meta.Peripheral) error {
	for i := range periphs {
		for j := i + 1; j < len(periphs); j++ {
			a, b := periphs[i], periphs[j]
			if a.Overlaps(b) {
				return diag.New(diag.KindConsistency,
					"address range [%#x, %#x) of %s overlaps [%#x, %#x) of %s",
					a.Base, a.End(), a.ID, b.Base, b.End(), b.ID).WithFields(a.ID, b.ID)
			}
		}
	}
	return nil
}

// Validate checks the descriptor's own invariants: an architecture tag,
// non-empty ranges within the address space and non-overlapping memory
// regions.
func Validate(hw *meta.HardwareDescriptor) error {
	if hw.Arch == "" {
		return errors.New("no architecture tag")
	}
	for _, r := range hw.Regions {
		if err := checkRange(r.Base, r.Size); err != nil {
			return fmt.Errorf("memory region %s: %w", r.Name, err)
		}
	}
	for _, p := range hw.Peripherals {
		if err := checkRange(p.Base, p.Size); err != nil {
			return fmt.Errorf("peripheral %s: %w", p.ID, err)
		}
	}
	for i := range hw.Regions {
		for j := i + 1; j < len(hw.Regions); j++ {
			a, b := hw.Regions[i], hw.Regions[j]
			if a.Base < b.End() && b.Base < a.End() {
				return fmt.Errorf("memory regions %s and %s overlap", a.Name, b.Name)
			}
		}
	}
	return nil
}
