package toolchain

import "strings"

// cpuArch maps meson host cpu names to architecture tags.
var cpuArch = map[string]string{
	"cortex-m0":     "thumbv6m",
	"cortex-m0plus": "thumbv6m",
	"cortex-m0+":    "thumbv6m",
	"cortex-m1":     "thumbv6m",
	"cortex-m3":     "thumbv7m",
	"cortex-m4":     "thumbv7em",
	"cortex-m7":     "thumbv7em",
	"cortex-m23":    "thumbv8m.base",
	"cortex-m33":    "thumbv8m.main",
	"cortex-m35p":   "thumbv8m.main",
	"cortex-m55":    "thumbv8m.main",
}

// familyArch maps meson cpu families to architecture tags when the cpu
// itself is not listed.
var familyArch = map[string]string{
	"riscv32": "riscv32imac",
}

// ArchForCPU returns the architecture tag of a meson host machine.
func ArchForCPU(cpu, family string) (string, bool) {
	if arch, ok := cpuArch[strings.ToLower(cpu)]; ok {
		return arch, true
	}
	arch, ok := familyArch[strings.ToLower(family)]
	return arch, ok
}

// ArchFromTarget returns the architecture component of a target triple.
func ArchFromTarget(triple string) string {
	arch, _, _ := strings.Cut(triple, "-")
	return arch
}

// DefaultTriple returns the bare-metal target triple for an architecture.
func DefaultTriple(arch string) string {
	switch {
	case strings.HasPrefix(arch, "riscv"):
		return arch + "-unknown-none-elf"
	case arch == "thumbv7em" || strings.HasPrefix(arch, "thumbv8m.main"):
		return arch + "-none-eabihf"
	default:
		return arch + "-none-eabi"
	}
}
