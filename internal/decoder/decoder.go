package decoder

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/stellar/go/xdr"

	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

// Decode extracts trades from a base64 encoded TransactionResult.
// Errors are *types.DecodeError carrying txHash.
func Decode(txHash, resultXDR string) ([]types.Trade, error) {
	var res xdr.TransactionResult
	if err := xdr.SafeUnmarshalBase64(resultXDR, &res); err != nil {
		return nil, &types.DecodeError{TxHash: txHash, Err: fmt.Errorf("failed unmarshalling transaction result: %w", err)}
	}
	trades, err := Trades(res)
	if err != nil {
		return nil, &types.DecodeError{TxHash: txHash, Err: err}
	}
	return trades, nil
}

// Trades returns trades in operation order. Failed transactions produce none.
func Trades(res xdr.TransactionResult) ([]types.Trade, error) {
	results, ok := operationResults(res.Result)
	if !ok {
		return nil, nil
	}

	var trades []types.Trade
	for i, op := range results {
		atoms, err := claimAtoms(op)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		for j, atom := range atoms {
			trade, keep, err := tradeFromAtom(atom)
			if err != nil {
				return nil, fmt.Errorf("operation %d claim %d: %w", i, j, err)
			}
			if keep {
				trades = append(trades, trade)
			}
		}
	}
	return trades, nil
}

// operationResults unwraps one level of fee bump.
func operationResults(r xdr.TransactionResultResult) ([]xdr.OperationResult, bool) {
	switch r.Code {
	case xdr.TransactionResultCodeTxSuccess:
		if r.Results == nil {
			return nil, false
		}
		return *r.Results, true
	case xdr.TransactionResultCodeTxFeeBumpInnerSuccess:
		if r.InnerResultPair == nil {
			return nil, false
		}
		inner := r.InnerResultPair.Result.Result
		if inner.Code != xdr.TransactionResultCodeTxSuccess || inner.Results == nil {
			return nil, false
		}
		return *inner.Results, true
	default:
		return nil, false
	}
}

func claimAtoms(op xdr.OperationResult) ([]xdr.ClaimAtom, error) {
	if op.Code != xdr.OperationResultCodeOpInner {
		return nil, nil
	}
	tr := op.Tr
	if tr == nil {
		return nil, fmt.Errorf("missing inner result")
	}

	switch tr.Type {
	case xdr.OperationTypePathPaymentStrictReceive:
		r := tr.PathPaymentStrictReceiveResult
		if r == nil || r.Code != xdr.PathPaymentStrictReceiveResultCodePathPaymentStrictReceiveSuccess || r.Success == nil {
			return nil, nil
		}
		return r.Success.Offers, nil
	case xdr.OperationTypePathPaymentStrictSend:
		r := tr.PathPaymentStrictSendResult
		if r == nil || r.Code != xdr.PathPaymentStrictSendResultCodePathPaymentStrictSendSuccess || r.Success == nil {
			return nil, nil
		}
		return r.Success.Offers, nil
	case xdr.OperationTypeManageSellOffer:
		return sellOfferClaims(tr.ManageSellOfferResult), nil
	case xdr.OperationTypeCreatePassiveSellOffer:
		return sellOfferClaims(tr.CreatePassiveSellOfferResult), nil
	case xdr.OperationTypeManageBuyOffer:
		r := tr.ManageBuyOfferResult
		if r == nil || r.Code != xdr.ManageBuyOfferResultCodeManageBuyOfferSuccess || r.Success == nil {
			return nil, nil
		}
		return r.Success.OffersClaimed, nil
	default:
		return nil, nil
	}
}

func sellOfferClaims(r *xdr.ManageSellOfferResult) []xdr.ClaimAtom {
	if r == nil || r.Code != xdr.ManageSellOfferResultCodeManageSellOfferSuccess || r.Success == nil {
		return nil
	}
	return r.Success.OffersClaimed
}

// tradeFromAtom reports keep=false for claims with a zero leg.
func tradeFromAtom(atom xdr.ClaimAtom) (types.Trade, bool, error) {
	var kind types.TradeKind
	switch atom.Type {
	case xdr.ClaimAtomTypeClaimAtomTypeV0, xdr.ClaimAtomTypeClaimAtomTypeOrderBook:
		kind = types.TradeKindOrderBook
	case xdr.ClaimAtomTypeClaimAtomTypeLiquidityPool:
		kind = types.TradeKindPool
	default:
		return types.Trade{}, false, fmt.Errorf("unknown claim atom type %d", atom.Type)
	}

	amountSold, amountBought := atom.AmountSold(), atom.AmountBought()
	if amountSold <= 0 || amountBought <= 0 {
		return types.Trade{}, false, nil
	}

	sold, err := types.AssetFromXDR(atom.AssetSold())
	if err != nil {
		return types.Trade{}, false, fmt.Errorf("asset sold: %w", err)
	}
	bought, err := types.AssetFromXDR(atom.AssetBought())
	if err != nil {
		return types.Trade{}, false, fmt.Errorf("asset bought: %w", err)
	}

	return types.Trade{
		AssetSold:    sold,
		AssetBought:  bought,
		AmountSold:   sdkmath.NewInt(int64(amountSold)),
		AmountBought: sdkmath.NewInt(int64(amountBought)),
		Kind:         kind,
	}, true, nil
}
