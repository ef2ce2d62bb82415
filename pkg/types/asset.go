package types

import (
	"fmt"
	"strings"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
)

// Asset identifies a classic Stellar asset. The zero value is the native asset.
type Asset struct {
	code   string
	issuer string
}

var NativeAsset = Asset{}

func ParseAsset(s string) (Asset, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "xlm") || strings.EqualFold(s, "native") {
		return NativeAsset, nil
	}

	code, issuer, found := strings.Cut(s, ":")
	if !found || code == "" || issuer == "" {
		return Asset{}, &ConfigurationError{Field: "asset", Reason: fmt.Sprintf("%q is not in CODE:ISSUER form", s)}
	}
	if len(code) > 12 {
		return Asset{}, &ConfigurationError{Field: "asset", Reason: fmt.Sprintf("asset code %q is too long", code)}
	}
	if _, err := strkey.Decode(strkey.VersionByteAccountID, issuer); err != nil {
		return Asset{}, &ConfigurationError{Field: "asset", Reason: fmt.Sprintf("invalid issuer %q: %v", issuer, err)}
	}

	return Asset{code: code, issuer: issuer}, nil
}

func MustParseAsset(s string) Asset {
	a, err := ParseAsset(s)
	if err != nil {
		panic(err)
	}
	return a
}

func ParseAssets(list []string) ([]Asset, error) {
	ret := make([]Asset, len(list))
	for i, s := range list {
		a, err := ParseAsset(s)
		if err != nil {
			return nil, err
		}
		ret[i] = a
	}
	return ret, nil
}

func AssetFromXDR(a xdr.Asset) (Asset, error) {
	var (
		typ          xdr.AssetType
		code, issuer string
	)
	if err := a.Extract(&typ, &code, &issuer); err != nil {
		return Asset{}, err
	}
	if typ == xdr.AssetTypeAssetTypeNative {
		return NativeAsset, nil
	}
	return Asset{code: code, issuer: issuer}, nil
}

func (a Asset) IsNative() bool {
	return a.code == ""
}

func (a Asset) Code() string {
	if a.IsNative() {
		return "XLM"
	}
	return a.code
}

func (a Asset) Issuer() string {
	return a.issuer
}

// String returns the canonical form: "native" or "CODE:ISSUER".
func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return a.code + ":" + a.issuer
}

func (a Asset) ToXDR() (xdr.Asset, error) {
	if a.IsNative() {
		return xdr.MustNewNativeAsset(), nil
	}
	return xdr.NewCreditAsset(a.code, a.issuer)
}

// ContractID returns the Stellar Asset Contract address of the asset on the given network.
func (a Asset) ContractID(networkPassphrase string) (string, error) {
	x, err := a.ToXDR()
	if err != nil {
		return "", err
	}
	id, err := x.ContractID(networkPassphrase)
	if err != nil {
		return "", fmt.Errorf("contract id of %s: %w", a, err)
	}
	return strkey.Encode(strkey.VersionByteContract, id[:])
}

func (a Asset) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Asset) UnmarshalText(text []byte) error {
	parsed, err := ParseAsset(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
