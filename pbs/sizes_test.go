package pbs

import (
	"encoding/json"
	"testing"

	"github.com/mxmCherry/openrtb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizesUnmarshal(t *testing.T) {
	testCases := []struct {
		description string
		in          string
		expected    Sizes
		str         string
	}{
		{
			description: "single pair",
			in:          `[300, 250]`,
			expected:    Sizes{{W: 300, H: 250}},
			str:         "300x250",
		},
		{
			description: "list of pairs",
			in:          `[[480, 360], [640, 480]]`,
			expected:    Sizes{{W: 480, H: 360}, {W: 640, H: 480}},
			str:         "480x360,640x480",
		},
		{
			description: "list of strings",
			in:          `["728x90", "300X250"]`,
			expected:    Sizes{{W: 728, H: 90}, {W: 300, H: 250}},
			str:         "728x90,300x250",
		},
		{
			description: "comma separated string",
			in:          `"728x90,300x250"`,
			expected:    Sizes{{W: 728, H: 90}, {W: 300, H: 250}},
			str:         "728x90,300x250",
		},
		{
			description: "empty list",
			in:          `[]`,
			expected:    Sizes{},
			str:         "",
		},
	}

	for _, test := range testCases {
		var sizes Sizes
		err := json.Unmarshal([]byte(test.in), &sizes)
		require.NoError(t, err, test.description)
		assert.Equal(t, test.expected, sizes, test.description)
		assert.Equal(t, test.str, sizes.String(), test.description)
	}
}

func TestSizesUnmarshalErrors(t *testing.T) {
	invalid := []string{
		`[300]`,
		`[300, 250, 1]`,
		`[[300, 250], [1]]`,
		`["300by250"]`,
		`{"w": 300}`,
		`[-1, 250]`,
	}

	for _, in := range invalid {
		var sizes Sizes
		assert.Error(t, json.Unmarshal([]byte(in), &sizes), in)
	}
}

func TestSizesMarshal(t *testing.T) {
	out, err := json.Marshal(Sizes{openrtb.Format{W: 300, H: 250}, openrtb.Format{W: 728, H: 90}})
	require.NoError(t, err)
	assert.JSONEq(t, `[[300,250],[728,90]]`, string(out))
}
