package pools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/Synternet/stellar-price-feeder/internal/volume"
	"github.com/Synternet/stellar-price-feeder/pkg/source"
	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

const (
	AquaName           = "aqua"
	AquaPoolsURL       = "https://amm-api.aqua.network/pools/?size=500"
	DefaultListRefresh = time.Hour

	aquaConstantProduct = "constant_product"
	aquaStable          = "stable"
)

var aquaKeys = []string{
	"ReserveA", "ReserveB", "Reserves", "Decimals",
	"Tokens", "TokenA", "TokenB",
	"InitialA", "InitialATime", "FutureA", "FutureATime", "Fee",
}

type aquaPool struct {
	Address    string   `json:"address"`
	PoolType   string   `json:"pool_type"`
	SwapKilled bool     `json:"swap_killed"`
	Tokens     []string `json:"tokens_str"`
}

type aquaPage struct {
	Items []aquaPool `json:"items"`
	Next  *string    `json:"next"`
}

// Aqua lists Aquarius AMM pools through the public pool API and reads their reserves from contract storage.
type Aqua struct {
	sync.Mutex
	client    *http.Client
	url       string
	refresh   time.Duration
	state     source.ContractState
	contracts *ContractIDs
	logger    *slog.Logger

	pools   []aquaPool
	updated time.Time
}

type AquaOption func(*Aqua)

func WithAquaURL(url string) AquaOption {
	return func(a *Aqua) { a.url = url }
}

func WithHTTPClient(c *http.Client) AquaOption {
	return func(a *Aqua) { a.client = c }
}

func WithListRefresh(d time.Duration) AquaOption {
	return func(a *Aqua) { a.refresh = d }
}

func NewAqua(state source.ContractState, contracts *ContractIDs, logger *slog.Logger, opts ...AquaOption) *Aqua {
	ret := &Aqua{
		client:    &http.Client{Timeout: 30 * time.Second},
		url:       AquaPoolsURL,
		refresh:   DefaultListRefresh,
		state:     state,
		contracts: contracts,
		logger:    logger,
	}
	for _, o := range opts {
		o(ret)
	}
	return ret
}

var _ Provider = (*Aqua)(nil)

func (a *Aqua) Name() string {
	return AquaName
}

func (a *Aqua) ListCandidatePools(ctx context.Context, base types.Asset, assets []types.Asset) ([]Candidate, error) {
	list, err := a.poolList(ctx)
	if err != nil {
		return nil, err
	}

	tracked := make(map[string]types.Asset, len(assets))
	for _, asset := range assets {
		tracked[asset.String()] = asset
	}
	baseStr := base.String()

	var ret []Candidate
	for _, p := range list {
		if len(p.Tokens) != 2 || p.Tokens[0] == p.Tokens[1] {
			continue
		}
		var quote string
		switch baseStr {
		case p.Tokens[0]:
			quote = p.Tokens[1]
		case p.Tokens[1]:
			quote = p.Tokens[0]
		default:
			continue
		}
		asset, found := tracked[quote]
		if !found {
			continue
		}
		ret = append(ret, Candidate{Address: p.Address, Asset: asset, Stable: p.PoolType == aquaStable})
	}
	return ret, nil
}

// poolList returns the cached pool list, reloading it once it is older than the refresh interval.
func (a *Aqua) poolList(ctx context.Context) ([]aquaPool, error) {
	a.Lock()
	defer a.Unlock()

	if a.pools != nil && time.Since(a.updated) < a.refresh {
		return a.pools, nil
	}

	pools, err := a.loadPools(ctx)
	if err != nil {
		if a.pools != nil {
			a.logger.Warn("AQUA: Pool list refresh failed, using cached list", "age", time.Since(a.updated), "err", err)
			return a.pools, nil
		}
		return nil, err
	}
	a.pools = pools
	a.updated = time.Now()
	a.logger.Info("AQUA: Pool list loaded", "pools", len(pools))
	return pools, nil
}

func (a *Aqua) loadPools(ctx context.Context) ([]aquaPool, error) {
	var ret []aquaPool
	url := a.url
	for url != "" {
		page, err := a.fetchPage(ctx, url)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Items {
			if p.SwapKilled || len(p.Tokens) != 2 {
				continue
			}
			if p.PoolType != aquaConstantProduct && p.PoolType != aquaStable {
				a.logger.Debug("AQUA: Unsupported pool type", "pool", p.Address, "type", p.PoolType)
				continue
			}
			ret = append(ret, p)
		}
		url = ""
		if page.Next != nil {
			url = *page.Next
		}
	}
	if ret == nil {
		ret = []aquaPool{}
	}
	return ret, nil
}

func (a *Aqua) fetchPage(ctx context.Context, url string) (aquaPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return aquaPage{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return aquaPage{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return aquaPage{}, fmt.Errorf("aqua pool list: unexpected status %s", resp.Status)
	}

	var page aquaPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return aquaPage{}, fmt.Errorf("aqua pool list: %w", err)
	}
	return page, nil
}

func (a *Aqua) LoadPoolState(ctx context.Context, addresses []string) ([]source.ContractInstance, error) {
	return a.state.LoadContractInstances(ctx, addresses)
}

func (a *Aqua) ExtractReserves(instance source.ContractInstance, base types.Asset, assets []types.Asset) (types.PoolReserves, error) {
	invalid := func(format string, args ...any) (types.PoolReserves, error) {
		return types.PoolReserves{}, &types.InvalidPoolStateError{Pool: instance.Address, Reason: fmt.Sprintf(format, args...)}
	}

	baseID, err := a.contracts.ID(base)
	if err != nil {
		return types.PoolReserves{}, err
	}
	tracked, err := a.contracts.Tracked(assets)
	if err != nil {
		return types.PoolReserves{}, err
	}

	s := newStorage(instance.Storage, aquaKeys...)

	tokens, err := aquaTokens(s)
	if err != nil {
		return invalid("tokens: %v", err)
	}
	if tokens[0] == tokens[1] {
		return invalid("duplicate token %s", tokens[0])
	}
	var quoteID string
	switch baseID {
	case tokens[0]:
		quoteID = tokens[1]
	case tokens[1]:
		quoteID = tokens[0]
	default:
		return invalid("base token not in pool")
	}
	asset, found := tracked[quoteID]
	if !found {
		return invalid("quote token %s is not tracked", quoteID)
	}

	reserves, err := aquaReserves(s)
	if err != nil {
		return invalid("reserves: %v", err)
	}
	digits, err := aquaDecimals(s)
	if err != nil {
		return invalid("decimals: %v", err)
	}
	for i := range reserves {
		reserves[i] = volume.AdjustPrecision(reserves[i], digits[i], volume.DefaultDecimals)
	}
	if tokens[1] == baseID {
		reserves[0], reserves[1] = reserves[1], reserves[0]
	}

	ret := types.PoolReserves{
		Pool:     instance.Address,
		Asset:    asset,
		Reserves: reserves,
	}
	if s.has("InitialA") {
		stable, err := aquaStableParams(s)
		if err != nil {
			return invalid("stable params: %v", err)
		}
		ret.Stable = &stable
	}
	return ret, nil
}

func aquaTokens(s storage) ([2]string, error) {
	var ret [2]string
	if s.has("Tokens") {
		vec, err := s.Vec("Tokens")
		if err != nil {
			return ret, err
		}
		if len(vec) != 2 {
			return ret, fmt.Errorf("expected 2 tokens, got %d", len(vec))
		}
		for i, v := range vec {
			if ret[i], err = scAddress(v); err != nil {
				return ret, err
			}
		}
		return ret, nil
	}

	var err error
	if ret[0], err = s.Address("TokenA"); err != nil {
		return ret, err
	}
	if ret[1], err = s.Address("TokenB"); err != nil {
		return ret, err
	}
	return ret, nil
}

func aquaReserves(s storage) ([2]sdkmath.Int, error) {
	var (
		ret [2]sdkmath.Int
		err error
	)
	if s.has("ReserveA") {
		if ret[0], err = s.Int("ReserveA"); err != nil {
			return ret, err
		}
		if ret[1], err = s.Int("ReserveB"); err != nil {
			return ret, err
		}
		return ret, nil
	}

	vec, err := s.Vec("Reserves")
	if err != nil {
		return ret, err
	}
	if len(vec) != 2 {
		return ret, fmt.Errorf("expected 2 reserves, got %d", len(vec))
	}
	for i, v := range vec {
		if ret[i], err = scInt(v); err != nil {
			return ret, err
		}
	}
	return ret, nil
}

func aquaDecimals(s storage) ([2]int, error) {
	ret := [2]int{volume.DefaultDecimals, volume.DefaultDecimals}
	if !s.has("Decimals") {
		return ret, nil
	}
	vec, err := s.Vec("Decimals")
	if err != nil {
		return ret, err
	}
	if len(vec) != 2 {
		return ret, fmt.Errorf("expected 2 decimals, got %d", len(vec))
	}
	for i, v := range vec {
		d, err := scInt(v)
		if err != nil {
			return ret, err
		}
		if !d.IsInt64() || d.Int64() > 38 {
			return ret, fmt.Errorf("unsupported precision %s", d)
		}
		ret[i] = int(d.Int64())
	}
	return ret, nil
}

func aquaStableParams(s storage) (types.StableParams, error) {
	var (
		ret types.StableParams
		err error
	)
	if ret.InitialAmp, err = s.Int("InitialA"); err != nil {
		return ret, err
	}
	if ret.InitialAmpTime, err = s.Uint64("InitialATime"); err != nil {
		return ret, err
	}
	if ret.FutureAmp, err = s.Int("FutureA"); err != nil {
		return ret, err
	}
	if ret.FutureAmpTime, err = s.Uint64("FutureATime"); err != nil {
		return ret, err
	}
	if ret.FeeBps, err = s.Int("Fee"); err != nil {
		return ret, err
	}
	return ret, nil
}

func (a *Aqua) GetStatus() map[string]any {
	a.Lock()
	defer a.Unlock()
	return map[string]any{
		"pools":        len(a.pools),
		"updated":      a.updated,
		"contract_ids": a.contracts.GetStatus(),
	}
}
