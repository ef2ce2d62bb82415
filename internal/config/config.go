package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// File holds flag values keyed by long flag name, e.g.
//
//	rpc-url: https://soroban-testnet.stellar.org
//	assets: [USDC:GA5Z..., EURC:GDHU...]
type File map[string]any

func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (File, error) {
	ret := File{}
	if err := yaml.Unmarshal(data, &ret); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return ret, nil
}

// Apply sets flags that were not given on the command line. Unknown keys are an error.
func (f File) Apply(fs *pflag.FlagSet) error {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		flag := fs.Lookup(name)
		if flag == nil {
			return fmt.Errorf("config: unknown option %q", name)
		}
		if flag.Changed {
			continue
		}
		value, err := stringify(f[name])
		if err != nil {
			return fmt.Errorf("config: option %q: %w", name, err)
		}
		if err := fs.Set(name, value); err != nil {
			return fmt.Errorf("config: option %q: %w", name, err)
		}
	}
	return nil
}

func stringify(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			s, err := stringify(item)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ","), nil
	case map[string]any:
		return "", fmt.Errorf("nested values are not supported")
	default:
		return fmt.Sprint(v), nil
	}
}
