package pbs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mxmCherry/openrtb"
)

// Sizes holds the ad slot sizes of a bid request.
//
// On the wire a bid request carries either a single [w,h] pair or a list of pairs. Each
// pair may also be written as a "WxH" string.
type Sizes []openrtb.Format

func (s *Sizes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var single string
		if strErr := json.Unmarshal(data, &single); strErr == nil {
			return s.parseStrings(strings.Split(single, ","))
		}
		return fmt.Errorf("sizes must be an array: %v", err)
	}
	if len(raw) == 0 {
		*s = Sizes{}
		return nil
	}

	switch bytes.TrimSpace(raw[0])[0] {
	case '[':
		sizes := make(Sizes, 0, len(raw))
		for _, pair := range raw {
			format, err := parsePair(pair)
			if err != nil {
				return err
			}
			sizes = append(sizes, format)
		}
		*s = sizes
	case '"':
		tokens := make([]string, 0, len(raw))
		for _, token := range raw {
			var str string
			if err := json.Unmarshal(token, &str); err != nil {
				return err
			}
			tokens = append(tokens, str)
		}
		return s.parseStrings(tokens)
	default:
		format, err := parsePair(data)
		if err != nil {
			return err
		}
		*s = Sizes{format}
	}
	return nil
}

func (s Sizes) MarshalJSON() ([]byte, error) {
	pairs := make([][2]uint64, 0, len(s))
	for _, format := range s {
		pairs = append(pairs, [2]uint64{format.W, format.H})
	}
	return json.Marshal(pairs)
}

// String formats every size as "WxH" and joins them with commas.
func (s Sizes) String() string {
	tokens := make([]string, 0, len(s))
	for _, format := range s {
		tokens = append(tokens, strconv.FormatUint(format.W, 10)+"x"+strconv.FormatUint(format.H, 10))
	}
	return strings.Join(tokens, ",")
}

func (s *Sizes) parseStrings(tokens []string) error {
	sizes := make(Sizes, 0, len(tokens))
	for _, token := range tokens {
		parts := strings.Split(strings.ToLower(strings.TrimSpace(token)), "x")
		if len(parts) != 2 {
			return fmt.Errorf("invalid size %q", token)
		}
		w, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid size %q: %v", token, err)
		}
		h, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid size %q: %v", token, err)
		}
		sizes = append(sizes, openrtb.Format{W: w, H: h})
	}
	*s = sizes
	return nil
}

func parsePair(data []byte) (openrtb.Format, error) {
	var pair []uint64
	if err := json.Unmarshal(data, &pair); err != nil {
		return openrtb.Format{}, fmt.Errorf("invalid size %s: %v", string(data), err)
	}
	if len(pair) != 2 {
		return openrtb.Format{}, fmt.Errorf("invalid size %s: expected [w,h]", string(data))
	}
	return openrtb.Format{W: pair[0], H: pair[1]}, nil
}
