package rpc

import (
	"context"
	"fmt"

	"github.com/stellar/go/strkey"
	"github.com/stellar/go/xdr"

	"github.com/Synternet/stellar-price-feeder/pkg/source"
)

// MaxLedgerKeys is the number of keys sent in one getLedgerEntries call.
const MaxLedgerKeys = 200

var _ source.ContractState = (*Client)(nil)

type getLedgerEntriesParams struct {
	Keys []string `json:"keys"`
}

type ledgerEntry struct {
	Key                string    `json:"key"`
	XDR                string    `json:"xdr"`
	LastModifiedLedger flexInt64 `json:"lastModifiedLedgerSeq"`
}

type getLedgerEntriesResult struct {
	Entries      []ledgerEntry `json:"entries"`
	LatestLedger flexInt64     `json:"latestLedger"`
}

// InstanceKey is the ledger key of the persistent instance entry of a contract.
func InstanceKey(address string) (string, error) {
	raw, err := strkey.Decode(strkey.VersionByteContract, address)
	if err != nil {
		return "", fmt.Errorf("invalid contract address %q: %w", address, err)
	}
	var id xdr.Hash
	copy(id[:], raw)

	key := xdr.LedgerKey{
		Type: xdr.LedgerEntryTypeContractData,
		ContractData: &xdr.LedgerKeyContractData{
			Contract:   xdr.ScAddress{Type: xdr.ScAddressTypeScAddressTypeContract, ContractId: &id},
			Key:        xdr.ScVal{Type: xdr.ScValTypeScvLedgerKeyContractInstance},
			Durability: xdr.ContractDataDurabilityPersistent,
		},
	}
	return xdr.MarshalBase64(key)
}

// LoadContractInstances calls getLedgerEntries in batches. Contracts without an instance entry are omitted.
func (c *Client) LoadContractInstances(ctx context.Context, addresses []string) ([]source.ContractInstance, error) {
	byKey := make(map[string]string, len(addresses))
	keys := make([]string, 0, len(addresses))
	for _, address := range addresses {
		key, err := InstanceKey(address)
		if err != nil {
			return nil, err
		}
		if _, dup := byKey[key]; dup {
			continue
		}
		byKey[key] = address
		keys = append(keys, key)
	}

	ret := make([]source.ContractInstance, 0, len(keys))
	for start := 0; start < len(keys); start += MaxLedgerKeys {
		end := min(start+MaxLedgerKeys, len(keys))

		var res getLedgerEntriesResult
		if err := c.call(ctx, "getLedgerEntries", getLedgerEntriesParams{Keys: keys[start:end]}, &res); err != nil {
			return nil, err
		}

		for _, e := range res.Entries {
			instance, err := decodeInstance(e)
			if err != nil {
				c.logger.Warn("RPC: Bogus ledger entry", "key", e.Key, "err", err)
				continue
			}
			if address, found := byKey[e.Key]; found {
				instance.Address = address
			}
			ret = append(ret, instance)
		}
	}
	return ret, nil
}

func decodeInstance(e ledgerEntry) (source.ContractInstance, error) {
	var data xdr.LedgerEntryData
	if err := xdr.SafeUnmarshalBase64(e.XDR, &data); err != nil {
		return source.ContractInstance{}, err
	}
	cd, ok := data.GetContractData()
	if !ok {
		return source.ContractInstance{}, fmt.Errorf("not a contract data entry: %s", data.Type)
	}
	instance, ok := cd.Val.GetInstance()
	if !ok {
		return source.ContractInstance{}, fmt.Errorf("not a contract instance: %s", cd.Val.Type)
	}
	if cd.Contract.ContractId == nil {
		return source.ContractInstance{}, fmt.Errorf("contract data of a non contract address")
	}

	address, err := strkey.Encode(strkey.VersionByteContract, cd.Contract.ContractId[:])
	if err != nil {
		return source.ContractInstance{}, err
	}

	ret := source.ContractInstance{Address: address}
	if instance.Storage != nil {
		ret.Storage = *instance.Storage
	}
	return ret, nil
}
