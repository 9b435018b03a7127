// Package toolchain introspects the build system of a task for its project
// identity, declared dependencies and target architecture.
//
// Each supported build system has one Provider implementation. The provider
// is chosen by the caller at invocation time with New.
package toolchain
