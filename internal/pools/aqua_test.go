package pools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Synternet/stellar-price-feeder/internal/retry"
	"github.com/Synternet/stellar-price-feeder/pkg/source"
	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

const futurenetPassphrase = "Test SDF Future Network ; October 2022"

func sym(s string) xdr.ScVal {
	v := xdr.ScSymbol(s)
	return xdr.ScVal{Type: xdr.ScValTypeScvSymbol, Sym: &v}
}

func vec(items ...xdr.ScVal) xdr.ScVal {
	v := xdr.ScVec(items)
	pv := &v
	return xdr.ScVal{Type: xdr.ScValTypeScvVec, Vec: &pv}
}

func scU128(n uint64) xdr.ScVal {
	return xdr.ScVal{Type: xdr.ScValTypeScvU128, U128: &xdr.UInt128Parts{Lo: xdr.Uint64(n)}}
}

func u32(n uint32) xdr.ScVal {
	v := xdr.Uint32(n)
	return xdr.ScVal{Type: xdr.ScValTypeScvU32, U32: &v}
}

func u64(n uint64) xdr.ScVal {
	v := xdr.Uint64(n)
	return xdr.ScVal{Type: xdr.ScValTypeScvU64, U64: &v}
}

func contract(t *testing.T, id string) xdr.ScVal {
	t.Helper()
	raw, err := strkey.Decode(strkey.VersionByteContract, id)
	require.NoError(t, err)
	var h xdr.Hash
	copy(h[:], raw)
	return xdr.ScVal{Type: xdr.ScValTypeScvAddress, Address: &xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeContract, ContractId: &h}}
}

func entry(k, v xdr.ScVal) xdr.ScMapEntry {
	return xdr.ScMapEntry{Key: k, Val: v}
}

func newTestAqua(t *testing.T, opts ...AquaOption) (*Aqua, string, string) {
	t.Helper()
	contracts := NewContractIDs(futurenetPassphrase)
	baseID, err := contracts.ID(types.NativeAsset)
	require.NoError(t, err)
	usdID, err := contracts.ID(usd)
	require.NoError(t, err)
	return NewAqua(nil, contracts, slog.Default(), opts...), baseID, usdID
}

func TestContractIDs(t *testing.T) {
	c := NewContractIDs(futurenetPassphrase)

	id, err := c.ID(types.NativeAsset)
	require.NoError(t, err)
	assert.Equal(t, "CB64D3G7SM2RTH6JSGG34DDTFTQ5CFDKVDZJZSODMCX4NJ2HV2KN7OHT", id)

	id, err = c.ID(usd)
	require.NoError(t, err)
	assert.Equal(t, "CCWNZPARJG7KQ6N4BGZ5OBWKSSK4AVQ5URLDRXB4ZJXKGEJQTIIRPAHN", id)

	_, err = c.ID(usd)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c.GetStatus()["misses"])
}

func TestAqua_ExtractReserves(t *testing.T) {
	a, baseID, usdID := newTestAqua(t)
	gbpID, err := a.contracts.ID(types.MustParseAsset("GBP:" + issuer))
	require.NoError(t, err)

	tests := []struct {
		name       string
		storage    xdr.ScMap
		want       [2]int64
		wantStable bool
		wantErr    bool
	}{
		{
			name: "split reserves",
			storage: xdr.ScMap{
				entry(sym("TokenA"), contract(t, baseID)),
				entry(sym("TokenB"), contract(t, usdID)),
				entry(sym("ReserveA"), scU128(1_000_000)),
				entry(sym("ReserveB"), scU128(2_000_000)),
			},
			want: [2]int64{1_000_000, 2_000_000},
		},
		{
			name: "vector keys, base second, decimals",
			storage: xdr.ScMap{
				entry(vec(sym("Tokens")), vec(contract(t, usdID), contract(t, baseID))),
				entry(vec(sym("Reserves")), vec(scU128(5_000_000_000), scU128(3_000_000))),
				entry(vec(sym("Decimals")), vec(u32(9), u32(7))),
				entry(vec(sym("Admin")), u32(1)),
			},
			want: [2]int64{3_000_000, 50_000_000},
		},
		{
			name: "stable",
			storage: xdr.ScMap{
				entry(sym("Tokens"), vec(contract(t, baseID), contract(t, usdID))),
				entry(sym("Reserves"), vec(scU128(7_000), scU128(8_000))),
				entry(sym("InitialA"), scU128(85)),
				entry(sym("InitialATime"), u64(1_700_000_000)),
				entry(sym("FutureA"), scU128(100)),
				entry(sym("FutureATime"), u64(1_700_086_400)),
				entry(sym("Fee"), u32(4)),
			},
			want:       [2]int64{7_000, 8_000},
			wantStable: true,
		},
		{
			name: "untracked quote",
			storage: xdr.ScMap{
				entry(sym("Tokens"), vec(contract(t, baseID), contract(t, gbpID))),
				entry(sym("Reserves"), vec(scU128(7_000), scU128(8_000))),
			},
			wantErr: true,
		},
		{
			name: "no base",
			storage: xdr.ScMap{
				entry(sym("Tokens"), vec(contract(t, usdID), contract(t, usdID))),
				entry(sym("Reserves"), vec(scU128(7_000), scU128(8_000))),
			},
			wantErr: true,
		},
		{
			name: "missing reserves",
			storage: xdr.ScMap{
				entry(sym("Tokens"), vec(contract(t, baseID), contract(t, usdID))),
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.ExtractReserves(source.ContractInstance{Address: "POOL", Storage: tt.storage}, types.NativeAsset, []types.Asset{usd, eur})
			if tt.wantErr {
				var invalid *types.InvalidPoolStateError
				require.True(t, errors.As(err, &invalid), "err = %v", err)
				assert.Equal(t, "POOL", invalid.Pool)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, usd, got.Asset)
			assert.True(t, got.Reserves[0].Equal(sdkmath.NewInt(tt.want[0])), "base reserve = %v", got.Reserves[0])
			assert.True(t, got.Reserves[1].Equal(sdkmath.NewInt(tt.want[1])), "quote reserve = %v", got.Reserves[1])
			assert.Equal(t, tt.wantStable, got.Stable != nil)
			if tt.wantStable {
				assert.True(t, got.Stable.InitialAmp.Equal(sdkmath.NewInt(85)))
				assert.Equal(t, uint64(1_700_086_400), got.Stable.FutureAmpTime)
				assert.True(t, got.Stable.FeeBps.Equal(sdkmath.NewInt(4)))
			}
		})
	}
}

func TestAqua_ListCandidatePools(t *testing.T) {
	var hits atomic.Int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprintf(w, `{"items":[
				{"address":"P4","pool_type":"stable","swap_killed":false,"tokens_str":["%s","native"]}
			],"next":null}`, eur)
			return
		}
		fmt.Fprintf(w, `{"items":[
			{"address":"P1","pool_type":"constant_product","swap_killed":false,"tokens_str":["native","%[1]s"]},
			{"address":"P2","pool_type":"constant_product","swap_killed":true,"tokens_str":["native","%[1]s"]},
			{"address":"P3","pool_type":"concentrated","swap_killed":false,"tokens_str":["native","%[1]s"]},
			{"address":"P5","pool_type":"stable","swap_killed":false,"tokens_str":["native","%[1]s","%[2]s"]},
			{"address":"P6","pool_type":"stable","swap_killed":false,"tokens_str":["%[1]s","%[2]s"]},
			{"address":"P7","pool_type":"stable","swap_killed":false,"tokens_str":["native","native"]}
		],"next":"%[3]s/?page=2"}`, usd, eur, srv.URL)
	}))
	defer srv.Close()

	a, _, _ := newTestAqua(t, WithAquaURL(srv.URL+"/?size=500"), WithHTTPClient(srv.Client()))

	got, err := a.ListCandidatePools(context.Background(), types.NativeAsset, []types.Asset{usd, eur})
	require.NoError(t, err)
	assert.Equal(t, []Candidate{
		{Address: "P1", Asset: usd},
		{Address: "P4", Asset: eur, Stable: true},
	}, got)

	// cached list is reused within the refresh interval
	_, err = a.ListCandidatePools(context.Background(), types.NativeAsset, []types.Asset{usd})
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestAqua_ListCandidatePools_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a, _, _ := newTestAqua(t, WithAquaURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := a.ListCandidatePools(context.Background(), types.NativeAsset, []types.Asset{usd})
	assert.Error(t, err)
}

type fakeProvider struct {
	candidates []Candidate
	instances  []source.ContractInstance
	listErr    error
	extract    func(source.ContractInstance) (types.PoolReserves, error)
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) ListCandidatePools(context.Context, types.Asset, []types.Asset) ([]Candidate, error) {
	return f.candidates, f.listErr
}

func (f *fakeProvider) LoadPoolState(_ context.Context, addresses []string) ([]source.ContractInstance, error) {
	return f.instances, nil
}

func (f *fakeProvider) ExtractReserves(i source.ContractInstance, _ types.Asset, _ []types.Asset) (types.PoolReserves, error) {
	return f.extract(i)
}

func testPolicy() retry.Policy {
	return retry.Policy{Attempts: 2, InitialInterval: 1, MaxInterval: 1}
}

func TestCollect(t *testing.T) {
	p := &fakeProvider{
		candidates: []Candidate{{Address: "A", Asset: usd}, {Address: "B", Asset: usd}},
		instances:  []source.ContractInstance{{Address: "A"}, {Address: "B"}},
		extract: func(i source.ContractInstance) (types.PoolReserves, error) {
			if i.Address == "B" {
				return types.PoolReserves{}, &types.InvalidPoolStateError{Pool: "B", Reason: "broken"}
			}
			return types.PoolReserves{Pool: i.Address, Asset: usd, Reserves: reserves(1_000, 2_000)}, nil
		},
	}

	got, err := Collect(context.Background(), p, types.NativeAsset, []types.Asset{usd}, testPolicy(), slog.Default())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Pool)
	assert.Equal(t, "fake", got[0].Provider)
}

func TestCollect_KindMismatch(t *testing.T) {
	amp := &types.StableParams{InitialAmp: sdkmath.NewInt(85), FutureAmp: sdkmath.NewInt(85), FeeBps: sdkmath.NewInt(4)}
	p := &fakeProvider{
		candidates: []Candidate{
			{Address: "CP", Asset: usd},
			{Address: "STABLE", Asset: eur, Stable: true},
			{Address: "NOAMP", Asset: eur, Stable: true},
			{Address: "AMP", Asset: usd},
		},
		instances: []source.ContractInstance{{Address: "CP"}, {Address: "STABLE"}, {Address: "NOAMP"}, {Address: "AMP"}},
		extract: func(i source.ContractInstance) (types.PoolReserves, error) {
			r := types.PoolReserves{Pool: i.Address, Asset: usd, Reserves: reserves(1_000, 2_000)}
			if i.Address == "STABLE" || i.Address == "AMP" {
				r.Stable = amp
			}
			return r, nil
		},
	}

	got, err := Collect(context.Background(), p, types.NativeAsset, []types.Asset{usd, eur}, testPolicy(), slog.Default())
	require.NoError(t, err)
	pools := make([]string, len(got))
	for i, r := range got {
		pools[i] = r.Pool
	}
	assert.Equal(t, []string{"CP", "STABLE"}, pools)
}

func TestCollectAll_ProviderFailure(t *testing.T) {
	failing := &fakeProvider{listErr: errors.New("unavailable")}
	empty := &fakeProvider{}

	got, err := CollectAll(context.Background(), []Provider{failing, empty}, types.NativeAsset, []types.Asset{usd}, testPolicy(), slog.Default())
	assert.Empty(t, got)

	var fetchErr *types.FetchError
	require.True(t, errors.As(err, &fetchErr), "err = %v", err)
	assert.Equal(t, 2, fetchErr.Attempts)
}
