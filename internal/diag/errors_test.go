package diag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "parse with position",
			err:  New(KindConfigParse, "expected KEY=VALUE").At(".config", 12),
			want: ".config:12: CONFIG_PARSE: expected KEY=VALUE",
		},
		{
			name: "consistency with fields",
			err:  New(KindConsistency, "address ranges overlap").WithFields("usart1", "usart2"),
			want: "CONSISTENCY: address ranges overlap [usart1, usart2]",
		},
		{
			name: "introspection mismatch",
			err:  New(KindIntrospection, "package name differs from environment").Mismatch("blinky", "blink"),
			want: `INTROSPECTION: package name differs from environment (expected "blinky", found "blink")`,
		},
		{
			name: "embed with cause",
			err:  Wrap(KindEmbed, errors.New("unknown option"), "objcopy failed"),
			want: "EMBED: objcopy failed: unknown option",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsKindThroughWrapping(t *testing.T) {
	base := New(KindHardwareBinding, "peripheral %q not described", "spi9")
	wrapped := fmt.Errorf("loading hardware: %w", base)

	assert.True(t, IsKind(wrapped, KindHardwareBinding))
	assert.False(t, IsKind(wrapped, KindHardwareParse))
	assert.False(t, IsKind(errors.New("plain"), KindHardwareBinding))

	de, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "E202", de.Code())
}

func TestUnwrapReachesCause(t *testing.T) {
	sentinel := errors.New("checksum mismatch")
	err := Wrap(KindVerify, sentinel, "record rejected")
	assert.ErrorIs(t, err, sentinel)
}

func TestDetails(t *testing.T) {
	err := New(KindConfigValue, "not an integer").At(".config", 3).WithFields("CONFIG_TASK_PRIORITY")
	d := err.Details()
	assert.Equal(t, "CONFIG_VALUE", d["kind"])
	assert.Equal(t, ".config", d["file"])
	assert.Equal(t, 3, d["line"])
	assert.Equal(t, []string{"CONFIG_TASK_PRIORITY"}, d["fields"])
	assert.NotContains(t, d, "expected")
}

func TestUnknownKindCode(t *testing.T) {
	assert.Equal(t, "E000", Kind("OTHER").Code())
}
