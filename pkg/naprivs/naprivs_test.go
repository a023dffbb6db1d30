package naprivs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name  string
		privs Privileges
		want  int64
	}{
		{
			name:  "all privileges notified",
			privs: Set(All, ObserveNotified),
			want:  -1073741569,
		},
		{
			name:  "empty set defaults to hidden",
			privs: Set(),
			want:  -2147483648,
		},
		{
			name:  "empty set notified",
			privs: Set(ObserveNotified),
			want:  -1073741824,
		},
		{
			name:  "control and observe hidden",
			privs: Set(ControlObserve),
			want:  -2147483646,
		},
		{
			name:  "text notified",
			privs: Set(Text, ObserveNotified),
			want:  -1073741823,
		},
		{
			name:  "all supersedes individual capabilities",
			privs: Set(All, Text, Copy, ObserveNotified),
			want:  -1073741569,
		},
		{
			name:  "every capability listed individually equals all",
			privs: Set(Text, ControlObserve, Copy, DeleteReplace, Reports, Launch, Settings, RestartShutdown, ObserveNotified),
			want:  -1073741569,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Mask(tt.want), Encode(tt.privs))
		})
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		mask int64
		want Privileges
	}{
		{
			name: "enabled but nothing set",
			mask: -1073741824,
			want: Set(ObserveNotified),
		},
		{
			name: "all disabled",
			mask: -2147483648,
			want: Set(ObserveHidden),
		},
		{
			name: "all enabled",
			mask: -1073741569,
			want: Set(All, ObserveNotified),
		},
		{
			name: "control and observe without notification",
			mask: -2147483646,
			want: Set(ControlObserve, ObserveHidden),
		},
		{
			name: "settings launch copy",
			mask: Encode(Set(Settings, Launch, Copy)).Int64(),
			want: Set(Settings, Launch, Copy, ObserveHidden),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(Mask(tt.mask))
			assert.True(t, got.Equal(tt.want), "got %v want %v", got.Names(), tt.want.Names())
		})
	}
}

func TestRoundTripPrivilegesToMask(t *testing.T) {
	// decode(encode(privs)) == privs for every valid set with a fixed
	// observe flag.
	capabilities := []Privilege{
		Text, ControlObserve, Copy, DeleteReplace,
		Reports, Launch, Settings, RestartShutdown,
	}

	for bits := 0; bits < 1<<len(capabilities); bits++ {
		privs := Set(ObserveHidden)
		for i, name := range capabilities {
			if bits&(1<<i) != 0 {
				privs[name] = true
			}
		}
		want := privs
		if bits == 1<<len(capabilities)-1 {
			// Every bit set decodes to the "all" shortcut.
			want = Set(All, ObserveHidden)
		}

		got := Decode(Encode(privs))
		require.True(t, got.Equal(want), "bits %#x: got %v want %v", bits, got.Names(), want.Names())
	}
}

func TestRoundTripMaskToPrivileges(t *testing.T) {
	// encode(decode(mask)) == mask for masks produced by Encode. This does
	// not hold for arbitrary int64 input: decode is not injective.
	masks := []int64{
		-2147483648, -2147483646, -1073741824, -1073741823,
		-1073741822, -1073741820, -1073741816, -1073741808,
		-1073741792, -1073741760, -1073741696, -1073741569,
	}
	for _, mask := range masks {
		assert.Equal(t, Mask(mask), Encode(Decode(Mask(mask))), "mask %d", mask)
	}
}

func TestParse(t *testing.T) {
	t.Run("valid list", func(t *testing.T) {
		privs, err := Parse("settings,launch,copy")
		require.NoError(t, err)
		assert.True(t, privs.Equal(Set(Settings, Launch, Copy)))
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		privs, err := Parse("copy,copy,copy")
		require.NoError(t, err)
		assert.True(t, privs.Equal(Set(Copy)))
	})

	t.Run("empty string is an empty set", func(t *testing.T) {
		privs, err := Parse("")
		require.NoError(t, err)
		assert.Empty(t, privs)
	})

	t.Run("unknown name is an error", func(t *testing.T) {
		_, err := Parse("settings,frobnicate")
		var unknownErr *UnknownPrivilegeError
		require.ErrorAs(t, err, &unknownErr)
		assert.Equal(t, "frobnicate", unknownErr.Name)
	})

	t.Run("whitespace is not trimmed", func(t *testing.T) {
		_, err := Parse("settings, launch")
		assert.Error(t, err)
	})
}

func TestParseLenient(t *testing.T) {
	privs := ParseLenient("settings,bogus,launch")
	assert.True(t, privs.Equal(Set(Settings, Launch)))

	assert.Empty(t, ParseLenient(""))
	assert.Empty(t, ParseLenient("enabled,disabled"))
}

func TestFormatParseRoundTrip(t *testing.T) {
	orig := Set(Settings, Launch, Copy, ObserveNotified)
	parsed, err := Parse(Format(orig))
	require.NoError(t, err)
	assert.True(t, parsed.Equal(orig))
}

func TestMaskString(t *testing.T) {
	assert.Equal(t, "-1073741824", Mask(-1073741824).String())

	mask, err := ParseMask("-1073741569")
	require.NoError(t, err)
	assert.Equal(t, Mask(-1073741569), mask)

	_, err = ParseMask("not-a-number")
	assert.Error(t, err)
}

func TestEmptySetEncodesToDisabledState(t *testing.T) {
	// An empty privilege list writes the notify bit and sign-extension
	// marker only.
	privs, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, Mask(-2147483648), Encode(privs))

	got := Decode(Encode(privs))
	assert.True(t, got.Equal(Set(ObserveHidden)), "got %v", got.Names())
}
