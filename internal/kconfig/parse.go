package kconfig

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"io/fs"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/outpost-os/shieldmeta/internal/diag"
	"github.com/outpost-os/shieldmeta/internal/meta"
)

var (
	keyPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	notSetPattern = regexp.MustCompile(`^#\s*([A-Za-z_][A-Za-z0-9_]*) is not set$`)
	decPattern    = regexp.MustCompile(`^-?[0-9]+$`)
	hexPattern    = regexp.MustCompile(`^0[xX][0-9a-fA-F]+$`)
	wordPattern   = regexp.MustCompile(`^[A-Za-z0-9_.+\-/:]+$`)
)

// File is a parsed configuration with the line each key was defined on.
type File struct {
	Name   string
	Config *meta.TaskConfig
	Lines  map[string]int
}

// Load reads, parses and validates the configuration at path.
func Load(path string) (*meta.TaskConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, diag.Wrap(diag.KindConfigMissing, err, "configuration file not found").At(path, 0)
		}
		return nil, diag.Wrap(diag.KindConfigMissing, err, "configuration file unreadable").At(path, 0)
	}

	f, err := Parse(path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := Validate(f); err != nil {
		return nil, err
	}
	return f.Config, nil
}

// Parse reads KEY=VALUE lines from r. name is used in error positions.
// Duplicate keys are a parse error reported at the second definition.
func Parse(name string, r io.Reader) (*File, error) {
	f := &File{Name: name, Config: meta.NewTaskConfig(), Lines: make(map[string]int)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		var key string
		var value meta.Value
		if strings.HasPrefix(text, "#") {
			m := notSetPattern.FindStringSubmatch(text)
			if m == nil {
				continue // comment
			}
			key, value = m[1], meta.Bool(false)
		} else {
			k, raw, ok := strings.Cut(text, "=")
			if !ok {
				return nil, diag.New(diag.KindConfigParse, "expected KEY=VALUE, got %q", text).At(name, line)
			}
			key = strings.TrimSpace(k)
			if !keyPattern.MatchString(key) {
				return nil, diag.New(diag.KindConfigParse, "invalid key %q", key).At(name, line)
			}
			v, err := parseValue(strings.TrimSpace(raw))
			if err != nil {
				return nil, diag.Wrap(diag.KindConfigParse, err, "invalid value for %s", key).
					At(name, line).WithFields(key)
			}
			value = v
		}

		if !f.Config.Set(key, value) {
			return nil, diag.New(diag.KindConfigParse, "duplicate key %s (first defined on line %d)", key, f.Lines[key]).
				At(name, line).WithFields(key)
		}
		f.Lines[key] = line
	}
	if err := sc.Err(); err != nil {
		return nil, diag.Wrap(diag.KindConfigParse, err, "reading configuration").At(name, line+1)
	}
	return f, nil
}

func parseValue(raw string) (meta.Value, error) {
	switch {
	case raw == "":
		return nil, errors.New("empty value")
	case raw == "y" || raw == "m":
		return meta.Bool(true), nil
	case raw == "n":
		return meta.Bool(false), nil
	case strings.HasPrefix(raw, `"`):
		s, err := unquote(raw)
		if err != nil {
			return nil, err
		}
		return meta.String(s), nil
	case hexPattern.MatchString(raw):
		u, err := strconv.ParseUint(raw[2:], 16, 64)
		if err != nil || u > math.MaxInt64 {
			return nil, errors.New("hex integer out of range")
		}
		return meta.Int(int64(u)), nil
	case decPattern.MatchString(raw):
		i, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.New("integer out of range")
		}
		return meta.Int(i), nil
	case wordPattern.MatchString(raw):
		return meta.Enum(raw), nil
	default:
		return nil, errors.New("unquoted value contains invalid characters")
	}
}

// unquote decodes a Kconfig string literal: double quoted, with \" and \\
// as the only escapes.
func unquote(raw string) (string, error) {
	var b strings.Builder
	escaped := false
	for i := 1; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			if c != '"' && c != '\\' {
				return "", errors.New("invalid escape sequence")
			}
			b.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			if i != len(raw)-1 {
				return "", errors.New("unexpected text after closing quote")
			}
			return b.String(), nil
		default:
			b.WriteByte(c)
		}
	}
	return "", errors.New("unterminated string")
}
