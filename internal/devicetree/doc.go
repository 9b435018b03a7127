// Package devicetree loads a resolved hardware description into a
// HardwareDescriptor.
//
// The devicetree compiler is an external collaborator: this package consumes
// its resolved output exported as a versioned YAML document, never .dts
// source. A document may include other documents, searched next to the
// including file first and then in the include directories, in order.
//
//	schema: 1
//	arch: thumbv7em
//	include: [soc.yaml]
//	memory:
//	  - {name: ram0, reg: [0x20000000, 0x10000], kind: ram}
//	peripherals:
//	  - {id: usart1, compatible: "st,stm32-usart", reg: [0x40011000, 0x400], interrupts: [37]}
package devicetree
