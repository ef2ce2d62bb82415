package pools

import (
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

// storage is contract instance storage indexed by key name.
type storage map[string]xdr.ScVal

// newStorage keeps only the requested keys. A key is either a symbol or a vector led by a symbol.
func newStorage(m xdr.ScMap, keys ...string) storage {
	wanted := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		wanted[k] = struct{}{}
	}

	ret := make(storage, len(keys))
	for _, entry := range m {
		name, ok := keyName(entry.Key)
		if !ok {
			continue
		}
		if _, found := wanted[name]; len(keys) > 0 && !found {
			continue
		}
		ret[name] = entry.Val
	}
	return ret
}

func keyName(k xdr.ScVal) (string, bool) {
	if sym, ok := k.GetSym(); ok {
		return string(sym), true
	}
	vec, ok := k.GetVec()
	if !ok || vec == nil || len(*vec) == 0 {
		return "", false
	}
	sym, ok := (*vec)[0].GetSym()
	return string(sym), ok
}

func (s storage) has(key string) bool {
	_, found := s[key]
	return found
}

func (s storage) Int(key string) (sdkmath.Int, error) {
	v, found := s[key]
	if !found {
		return sdkmath.Int{}, fmt.Errorf("missing %s", key)
	}
	ret, err := scInt(v)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("%s: %w", key, err)
	}
	return ret, nil
}

func (s storage) Uint64(key string) (uint64, error) {
	v, found := s[key]
	if !found {
		return 0, fmt.Errorf("missing %s", key)
	}
	ret, err := scInt(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if !ret.IsUint64() {
		return 0, fmt.Errorf("%s: %s overflows uint64", key, ret)
	}
	return ret.Uint64(), nil
}

func (s storage) Address(key string) (string, error) {
	v, found := s[key]
	if !found {
		return "", fmt.Errorf("missing %s", key)
	}
	return scAddress(v)
}

func (s storage) Vec(key string) ([]xdr.ScVal, error) {
	v, found := s[key]
	if !found {
		return nil, fmt.Errorf("missing %s", key)
	}
	vec, ok := v.GetVec()
	if !ok || vec == nil {
		return nil, fmt.Errorf("%s: expected vec, got %s", key, v.Type)
	}
	return *vec, nil
}

// scInt reads any unsigned or non-negative integer ScVal.
func scInt(v xdr.ScVal) (sdkmath.Int, error) {
	switch v.Type {
	case xdr.ScValTypeScvU32:
		return sdkmath.NewIntFromUint64(uint64(v.MustU32())), nil
	case xdr.ScValTypeScvU64:
		return sdkmath.NewIntFromUint64(uint64(v.MustU64())), nil
	case xdr.ScValTypeScvU128:
		parts := v.MustU128()
		return u128(uint64(parts.Hi), uint64(parts.Lo)), nil
	case xdr.ScValTypeScvI128:
		parts := v.MustI128()
		if parts.Hi < 0 {
			return sdkmath.Int{}, fmt.Errorf("negative i128")
		}
		return u128(uint64(parts.Hi), uint64(parts.Lo)), nil
	default:
		return sdkmath.Int{}, fmt.Errorf("expected integer, got %s", v.Type)
	}
}

func u128(hi, lo uint64) sdkmath.Int {
	ret := new(big.Int).SetUint64(hi)
	ret.Lsh(ret, 64)
	ret.Or(ret, new(big.Int).SetUint64(lo))
	return sdkmath.NewIntFromBigInt(ret)
}

func scAddress(v xdr.ScVal) (string, error) {
	addr, ok := v.GetAddress()
	if !ok {
		return "", fmt.Errorf("expected address, got %s", v.Type)
	}
	switch addr.Type {
	case xdr.ScAddressTypeScAddressTypeContract:
		if addr.ContractId == nil {
			return "", fmt.Errorf("empty contract address")
		}
		return strkey.Encode(strkey.VersionByteContract, addr.ContractId[:])
	case xdr.ScAddressTypeScAddressTypeAccount:
		if addr.AccountId == nil {
			return "", fmt.Errorf("empty account address")
		}
		return addr.AccountId.GetAddress()
	default:
		return "", fmt.Errorf("unsupported address type %s", addr.Type)
	}
}
