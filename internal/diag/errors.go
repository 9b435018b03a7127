package diag

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes a pipeline error.
type Kind string

const (
	// KindConfigParse indicates malformed configuration syntax.
	KindConfigParse Kind = "CONFIG_PARSE"

	// KindConfigMissing indicates the configuration file is absent.
	KindConfigMissing Kind = "CONFIG_MISSING"

	// KindConfigValue indicates a recognized key holds a value of the wrong type or range.
	KindConfigValue Kind = "CONFIG_VALUE"

	// KindHardwareParse indicates a malformed hardware description.
	KindHardwareParse Kind = "HARDWARE_PARSE"

	// KindHardwareBinding indicates the task references hardware the description lacks.
	KindHardwareBinding Kind = "HARDWARE_BINDING"

	// KindIntrospection indicates the build system disagrees with the environment.
	KindIntrospection Kind = "INTROSPECTION"

	// KindConsistency indicates a cross-component invariant violation.
	KindConsistency Kind = "CONSISTENCY"

	// KindSerialization indicates an internal encoder defect.
	KindSerialization Kind = "SERIALIZATION"

	// KindEmbed indicates the linker or objcopy rejected the metadata section.
	KindEmbed Kind = "EMBED"

	// KindVerify indicates an extracted section failed verification.
	KindVerify Kind = "VERIFY"
)

// codes maps each kind to its stable diagnostic code.
var codes = map[Kind]string{
	KindConfigParse:     "E101",
	KindConfigMissing:   "E102",
	KindConfigValue:     "E103",
	KindHardwareParse:   "E201",
	KindHardwareBinding: "E202",
	KindIntrospection:   "E301",
	KindConsistency:     "E401",
	KindSerialization:   "E402",
	KindEmbed:           "E501",
	KindVerify:          "E502",
}

// Code returns the stable diagnostic code for the kind.
func (k Kind) Code() string {
	if c, ok := codes[k]; ok {
		return c
	}
	return "E000"
}

// Pos is a location in an input file. Line is 1-based; zero means unknown.
type Pos struct {
	File string
	Line int
}

func (p Pos) String() string {
	if p.Line > 0 {
		return fmt.Sprintf("%s:%d", p.File, p.Line)
	}
	return p.File
}

// IsValid reports whether the position names a file.
func (p Pos) IsValid() bool {
	return p.File != ""
}

// Error is a structured pipeline error.
//
// Parse errors carry Pos, binding and consistency errors carry Fields,
// introspection errors carry Expected and Found, and embed/verify errors
// wrap the underlying toolchain diagnostic in Err.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Message is a human-readable description.
	Message string

	// Pos locates the offending input, if known.
	Pos Pos

	// Fields names the conflicting fields or keys.
	Fields []string

	// Expected and Found describe an environment mismatch.
	Expected string
	Found    string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Pos.IsValid() {
		b.WriteString(e.Pos.String())
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Fields, ", "))
	}
	if e.Expected != "" || e.Found != "" {
		fmt.Fprintf(&b, " (expected %q, found %q)", e.Expected, e.Found)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the stable diagnostic code.
func (e *Error) Code() string {
	return e.Kind.Code()
}

// Details returns the structured context of the error for JSON output.
func (e *Error) Details() map[string]any {
	d := map[string]any{"kind": string(e.Kind)}
	if e.Pos.IsValid() {
		d["file"] = e.Pos.File
		if e.Pos.Line > 0 {
			d["line"] = e.Pos.Line
		}
	}
	if len(e.Fields) > 0 {
		d["fields"] = e.Fields
	}
	if e.Expected != "" || e.Found != "" {
		d["expected"] = e.Expected
		d["found"] = e.Found
	}
	if e.Err != nil {
		d["cause"] = e.Err.Error()
	}
	return d
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// At sets the source position and returns the error.
func (e *Error) At(file string, line int) *Error {
	e.Pos = Pos{File: file, Line: line}
	return e
}

// WithFields sets the conflicting field names and returns the error.
func (e *Error) WithFields(fields ...string) *Error {
	e.Fields = fields
	return e
}

// Mismatch sets the expected and found values and returns the error.
func (e *Error) Mismatch(expected, found string) *Error {
	e.Expected = expected
	e.Found = found
	return e
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsKind reports whether err wraps an *Error of the given kind.
// Uses errors.As to handle wrapped errors.
func IsKind(err error, kind Kind) bool {
	de, ok := As(err)
	return ok && de.Kind == kind
}
