package stableswap

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

const (
	Coins         = 2
	MaxIterations = 255

	// AmpTimeMargin moves "now" forward when reading a ramping amplification coefficient.
	AmpTimeMargin = 5 * time.Second
)

var (
	one       = sdkmath.OneInt()
	coins     = sdkmath.NewInt(Coins)
	feeDenom  = sdkmath.NewInt(10_000)
	probe     = sdkmath.NewInt(100_000_000_000_000) // 1e14
	probeSqrd = probe.Mul(probe)
)

func ProbeAmount() sdkmath.Int {
	return probe
}

func converged(a, b sdkmath.Int) bool {
	if a.GT(b) {
		return a.Sub(b).LTE(one)
	}
	return b.Sub(a).LTE(one)
}

// ComputeD solves the invariant for the given balances. Non-convergence returns the last estimate.
func ComputeD(reserves [Coins]sdkmath.Int, amp sdkmath.Int) sdkmath.Int {
	s := sdkmath.ZeroInt()
	for _, x := range reserves {
		if !x.IsPositive() {
			return sdkmath.ZeroInt()
		}
		s = s.Add(x)
	}

	d := s
	ann := amp.Mul(coins)
	for i := 0; i < MaxIterations; i++ {
		dp := d
		for _, x := range reserves {
			dp = dp.Mul(d).Quo(x.Mul(coins))
		}
		prev := d
		num := ann.Mul(s).Add(dp.Mul(coins)).Mul(d)
		den := ann.Sub(one).Mul(d).Add(coins.AddRaw(1).Mul(dp))
		d = num.Quo(den)
		if converged(d, prev) {
			break
		}
	}
	return d
}

// GetY returns the balance of token out after the balance of token in becomes x.
func GetY(in, out int, x sdkmath.Int, reserves [Coins]sdkmath.Int, amp sdkmath.Int) (sdkmath.Int, error) {
	if in == out {
		return sdkmath.Int{}, fmt.Errorf("cannot swap token %d to itself", in)
	}
	if in < 0 || out < 0 || in >= Coins || out >= Coins {
		return sdkmath.Int{}, fmt.Errorf("token index out of bounds: %d -> %d", in, out)
	}

	d := ComputeD(reserves, amp)
	c := d
	s := sdkmath.ZeroInt()
	ann := amp.Mul(coins)

	for i := 0; i < Coins; i++ {
		var x1 sdkmath.Int
		switch i {
		case in:
			x1 = x
		case out:
			continue
		default:
			x1 = reserves[i]
		}
		s = s.Add(x1)
		c = c.Mul(d).Quo(x1.Mul(coins))
	}
	c = c.Mul(d).Quo(ann.Mul(coins))
	b := s.Add(d.Quo(ann))

	y := d
	for i := 0; i < MaxIterations; i++ {
		prev := y
		den := coins.Mul(y).Add(b).Sub(d)
		if !den.IsPositive() {
			return sdkmath.Int{}, &types.InvalidPoolStateError{Reason: "solver diverged"}
		}
		y = y.Mul(y).Add(c).Quo(den)
		if converged(y, prev) {
			break
		}
	}
	return y, nil
}

// CalculateDy returns the output of swapping dx of token in, net of the fee in basis points.
func CalculateDy(in, out int, dx sdkmath.Int, reserves [Coins]sdkmath.Int, feeBps, amp sdkmath.Int) (sdkmath.Int, error) {
	y, err := GetY(in, out, reserves[in].Add(dx), reserves, amp)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if y.IsZero() {
		return y, nil
	}
	dy := reserves[out].Sub(y).Sub(one)
	fee := feeBps.Mul(dy).Quo(feeDenom)
	return dy.Sub(fee), nil
}

// Amplification interpolates the amplification coefficient between the initial and future ramp points.
func Amplification(p types.StableParams, now time.Time) sdkmath.Int {
	ts := now.Add(AmpTimeMargin).Unix()
	if ts < 0 {
		ts = 0
	}
	t := uint64(ts)
	t0, t1 := p.InitialAmpTime, p.FutureAmpTime
	a0, a1 := p.InitialAmp, p.FutureAmp

	if t >= t1 || t1 <= t0 {
		return a1
	}
	if t <= t0 {
		return a0
	}

	elapsed := sdkmath.NewIntFromUint64(t - t0)
	span := sdkmath.NewIntFromUint64(t1 - t0)
	if a1.GT(a0) {
		return a0.Add(a1.Sub(a0).Mul(elapsed).Quo(span))
	}
	return a0.Sub(a0.Sub(a1).Mul(elapsed).Quo(span))
}

// CalculatePrice averages the quotes of a probe swap in both directions.
// The result is in quote units per ProbeAmount base units.
func CalculatePrice(reserves [Coins]sdkmath.Int, p types.StableParams, now time.Time) (price sdkmath.Int, err error) {
	defer func() {
		// sdkmath.Int panics on 256-bit overflow
		if r := recover(); r != nil {
			price, err = sdkmath.Int{}, &types.InvalidPoolStateError{Reason: fmt.Sprintf("arithmetic overflow: %v", r)}
		}
	}()

	for i, r := range reserves {
		if r.IsNil() || !r.IsPositive() {
			return sdkmath.Int{}, &types.InvalidPoolStateError{Reason: fmt.Sprintf("reserve %d is zero", i)}
		}
	}
	if p.InitialAmp.IsNil() || p.FutureAmp.IsNil() {
		return sdkmath.Int{}, &types.InvalidPoolStateError{Reason: "missing amplification coefficient"}
	}
	fee := p.FeeBps
	if fee.IsNil() {
		fee = sdkmath.ZeroInt()
	}

	amp := Amplification(p, now)
	if !amp.IsPositive() {
		return sdkmath.Int{}, &types.InvalidPoolStateError{Reason: "amplification coefficient is zero"}
	}

	aDy, err := CalculateDy(0, 1, probe, reserves, fee, amp)
	if err != nil {
		return sdkmath.Int{}, err
	}
	bDy, err := CalculateDy(1, 0, probe, reserves, fee, amp)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if !bDy.IsPositive() || aDy.IsNegative() {
		return sdkmath.Int{}, &types.InvalidPoolStateError{Reason: "pool too shallow for probe swap"}
	}

	return aDy.Add(probeSqrd.Quo(bDy)).QuoRaw(2), nil
}

// ImpliedVolumes expresses a stable pool as a (volume, quoteVolume) pair weighted by its base reserve.
func ImpliedVolumes(reserves [Coins]sdkmath.Int, p types.StableParams, now time.Time) (sdkmath.Int, sdkmath.Int, error) {
	price, err := CalculatePrice(reserves, p, now)
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	return reserves[0], reserves[0].Mul(price).Quo(probe), nil
}
