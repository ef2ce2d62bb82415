package flags

import (
	"strings"

	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

// Assets is a comma separated list of assets in canonical form (native, XLM or CODE:ISSUER).
// The first Set replaces the default, later ones append.
type Assets struct {
	Value   *[]types.Asset
	changed bool
}

func NewAssets(assets string) (*Assets, error) {
	parsed, err := parse(assets)
	if err != nil {
		return nil, err
	}
	return &Assets{Value: &parsed}, nil
}

func (a *Assets) Set(assets string) error {
	parsed, err := parse(assets)
	if err != nil {
		return err
	}
	if !a.changed {
		*a.Value = parsed
		a.changed = true
	} else {
		*a.Value = append(*a.Value, parsed...)
	}
	return nil
}

func (a *Assets) String() string {
	out := make([]string, len(*a.Value))
	for i, asset := range *a.Value {
		out[i] = asset.String()
	}
	return "[" + strings.Join(out, ",") + "]"
}

func (a *Assets) Type() string {
	return "assetSlice"
}

func parse(assets string) ([]types.Asset, error) {
	return types.ParseAssets(splitAndTrimEmpty(assets, ",", " \t\r\n\b"))
}

// SplitAndTrimEmpty slices s into all subslices separated by sep and returns a
// slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. If sep is empty, SplitAndTrim splits after each
// UTF-8 sequence. First part is equivalent to strings.SplitN with a count of
// -1.  also filter out empty strings, only return non-empty strings.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))

	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}

	return nonEmptyStrings
}
