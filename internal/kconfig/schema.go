package kconfig

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/outpost-os/shieldmeta/internal/diag"
	"github.com/outpost-os/shieldmeta/internal/meta"
)

//go:embed schema.cue
var schemaSrc string

// Validate checks recognized keys against the task schema.
// Unrecognized keys are not inspected.
func Validate(f *File) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling task schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Task"))

	data := make(map[string]any, f.Config.Len())
	for _, e := range f.Config.Entries() {
		data[e.Key] = plain(e.Value)
	}

	v := def.Unify(ctx.Encode(data))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return valueError(f, err)
	}
	return validateExitModes(f)
}

// ValidateConfig runs the checks of Validate on a configuration that did
// not come from a file. Errors carry no position.
func ValidateConfig(cfg *meta.TaskConfig) error {
	return Validate(&File{Config: cfg, Lines: make(map[string]int)})
}

// valueError converts CUE validation errors into a single ConfigValue error
// positioned at the first offending key.
func valueError(f *File, err error) error {
	type problem struct {
		key string
		msg string
	}
	var problems []problem
	seen := make(map[string]bool)
	for _, e := range errors.Errors(err) {
		path := e.Path()
		key := ""
		if len(path) > 0 {
			key = path[len(path)-1]
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		format, args := e.Msg()
		problems = append(problems, problem{key: key, msg: fmt.Sprintf(format, args...)})
	}
	if len(problems) == 0 {
		return diag.Wrap(diag.KindConfigValue, err, "configuration does not match task schema").At(f.Name, 0)
	}
	sort.Slice(problems, func(i, j int) bool {
		li, lj := f.Lines[problems[i].key], f.Lines[problems[j].key]
		if li != lj {
			return li < lj
		}
		return problems[i].key < problems[j].key
	})

	keys := make([]string, len(problems))
	msgs := make([]string, len(problems))
	for i, p := range problems {
		keys[i] = p.key
		msgs[i] = p.key + ": " + p.msg
	}
	return diag.New(diag.KindConfigValue, "%s", strings.Join(msgs, "; ")).
		At(f.Name, f.Lines[problems[0].key]).WithFields(keys...)
}

// validateExitModes rejects configurations enabling more than one exit mode.
func validateExitModes(f *File) error {
	var enabled []string
	for _, mode := range exitModes {
		key := KeyExitPrefix + strings.ToUpper(mode.String())
		if v, ok := f.Config.Get(key); ok && v == meta.Bool(true) {
			enabled = append(enabled, key)
		}
	}
	if len(enabled) > 1 {
		return diag.New(diag.KindConfigValue, "at most one exit mode may be enabled").
			At(f.Name, f.Lines[enabled[1]]).WithFields(enabled...)
	}
	return nil
}

func plain(v meta.Value) any {
	switch val := v.(type) {
	case meta.Bool:
		return bool(val)
	case meta.Int:
		return int64(val)
	case meta.String:
		return string(val)
	case meta.Enum:
		return string(val)
	}
	return nil
}
