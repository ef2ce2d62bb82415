package pools

import (
	"sync/atomic"

	xsync "github.com/puzpuzpuz/xsync/v3"

	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

// ContractIDs caches Stellar Asset Contract addresses of classic assets on one network.
type ContractIDs struct {
	passphrase string
	ids        *xsync.MapOf[types.Asset, string]
	misses     atomic.Uint64
}

func NewContractIDs(networkPassphrase string) *ContractIDs {
	return &ContractIDs{
		passphrase: networkPassphrase,
		ids:        xsync.NewMapOf[types.Asset, string](),
	}
}

func (c *ContractIDs) ID(asset types.Asset) (string, error) {
	if id, found := c.ids.Load(asset); found {
		return id, nil
	}

	c.misses.Add(1)
	id, err := asset.ContractID(c.passphrase)
	if err != nil {
		return "", err
	}
	c.ids.Store(asset, id)
	return id, nil
}

// Tracked maps contract ids of the given assets back to the assets.
func (c *ContractIDs) Tracked(assets []types.Asset) (map[string]types.Asset, error) {
	ret := make(map[string]types.Asset, len(assets))
	for _, a := range assets {
		id, err := c.ID(a)
		if err != nil {
			return nil, err
		}
		ret[id] = a
	}
	return ret, nil
}

func (c *ContractIDs) GetStatus() map[string]any {
	return map[string]any{
		"contract_ids": c.ids.Size(),
		"misses":       c.misses.Load(),
	}
}
