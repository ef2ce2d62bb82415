package stableswap

import (
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/Synternet/stellar-price-feeder/pkg/types"
)

func reserves(a, b int64) [Coins]sdkmath.Int {
	return [Coins]sdkmath.Int{sdkmath.NewInt(a), sdkmath.NewInt(b)}
}

func flatParams(amp, fee int64) types.StableParams {
	return types.StableParams{
		InitialAmp:     sdkmath.NewInt(amp),
		InitialAmpTime: 0,
		FutureAmp:      sdkmath.NewInt(amp),
		FutureAmpTime:  0,
		FeeBps:         sdkmath.NewInt(fee),
	}
}

func TestComputeD(t *testing.T) {
	tests := []struct {
		name     string
		reserves [Coins]sdkmath.Int
		amp      int64
		want     sdkmath.Int
	}{
		{"balanced", reserves(1_000_000, 1_000_000), 100, sdkmath.NewInt(2_000_000)},
		{"empty", reserves(0, 0), 100, sdkmath.ZeroInt()},
		{"one side empty", reserves(0, 1_000), 100, sdkmath.ZeroInt()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeD(tt.reserves, sdkmath.NewInt(tt.amp))
			if !got.Equal(tt.want) {
				t.Errorf("ComputeD() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeD_Imbalanced(t *testing.T) {
	r := reserves(1_000_000, 3_000_000)
	got := ComputeD(r, sdkmath.NewInt(100))
	// D lies between the constant-product value 2*sqrt(xy) and the sum
	if got.GT(sdkmath.NewInt(4_000_000)) || got.LT(sdkmath.NewInt(3_464_101)) {
		t.Errorf("ComputeD() = %v, want within [3464101, 4000000]", got)
	}
}

func TestGetY_InvalidIndices(t *testing.T) {
	r := reserves(1_000, 1_000)
	if _, err := GetY(0, 0, sdkmath.NewInt(10), r, sdkmath.NewInt(10)); err == nil {
		t.Errorf("GetY() same index error = nil")
	}
	if _, err := GetY(0, 2, sdkmath.NewInt(10), r, sdkmath.NewInt(10)); err == nil {
		t.Errorf("GetY() out of bounds error = nil")
	}
}

func TestCalculateDy(t *testing.T) {
	r := reserves(1_000_000_000, 1_000_000_000)
	amp := sdkmath.NewInt(100)

	noFee, err := CalculateDy(0, 1, sdkmath.NewInt(1_000_000), r, sdkmath.ZeroInt(), amp)
	if err != nil {
		t.Fatalf("CalculateDy() error = %v", err)
	}
	withFee, err := CalculateDy(0, 1, sdkmath.NewInt(1_000_000), r, sdkmath.NewInt(30), amp)
	if err != nil {
		t.Fatalf("CalculateDy() error = %v", err)
	}

	if !noFee.LT(sdkmath.NewInt(1_000_000)) || noFee.LT(sdkmath.NewInt(999_000)) {
		t.Errorf("CalculateDy() = %v, want slightly below 1000000", noFee)
	}
	wantFee := noFee.Sub(noFee.MulRaw(30).QuoRaw(10_000))
	if !withFee.Equal(wantFee) {
		t.Errorf("CalculateDy() with fee = %v, want %v", withFee, wantFee)
	}
}

func TestAmplification(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	at := func(sec int64) uint64 { return uint64(now.Add(AmpTimeMargin).Unix() + sec) }

	tests := []struct {
		name   string
		params types.StableParams
		want   int64
	}{
		{
			name:   "ramp finished",
			params: types.StableParams{InitialAmp: sdkmath.NewInt(100), InitialAmpTime: at(-200), FutureAmp: sdkmath.NewInt(200), FutureAmpTime: at(-100)},
			want:   200,
		},
		{
			name:   "ramp not started",
			params: types.StableParams{InitialAmp: sdkmath.NewInt(100), InitialAmpTime: at(100), FutureAmp: sdkmath.NewInt(200), FutureAmpTime: at(200)},
			want:   100,
		},
		{
			name:   "ramp up halfway",
			params: types.StableParams{InitialAmp: sdkmath.NewInt(100), InitialAmpTime: at(-50), FutureAmp: sdkmath.NewInt(200), FutureAmpTime: at(50)},
			want:   150,
		},
		{
			name:   "ramp down quarter",
			params: types.StableParams{InitialAmp: sdkmath.NewInt(200), InitialAmpTime: at(-25), FutureAmp: sdkmath.NewInt(100), FutureAmpTime: at(75)},
			want:   175,
		},
		{
			name:   "degenerate window",
			params: types.StableParams{InitialAmp: sdkmath.NewInt(100), InitialAmpTime: at(10), FutureAmp: sdkmath.NewInt(300), FutureAmpTime: at(10)},
			want:   300,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Amplification(tt.params, now); !got.Equal(sdkmath.NewInt(tt.want)) {
				t.Errorf("Amplification() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculatePrice_Balanced(t *testing.T) {
	const deep = 1_000_000_000_000_000_000 // 1e18
	for _, fee := range []int64{0, 4, 30} {
		price, err := CalculatePrice(reserves(deep, deep), flatParams(100, fee), time.Now())
		if err != nil {
			t.Fatalf("CalculatePrice() fee=%d error = %v", fee, err)
		}
		lo := probe.Sub(probe.QuoRaw(1_000))
		hi := probe.Add(probe.QuoRaw(1_000))
		if price.LT(lo) || price.GT(hi) {
			t.Errorf("CalculatePrice() fee=%d = %v, want within 0.1%% of %v", fee, price, probe)
		}
	}
}

func TestCalculatePrice_Imbalanced(t *testing.T) {
	const deep = 1_000_000_000_000_000_000
	// more base than quote in the pool makes base cheaper
	price, err := CalculatePrice(reserves(4*deep, deep), flatParams(10, 0), time.Now())
	if err != nil {
		t.Fatalf("CalculatePrice() error = %v", err)
	}
	if !price.LT(probe) {
		t.Errorf("CalculatePrice() = %v, want below %v", price, probe)
	}
}

func TestCalculatePrice_Invalid(t *testing.T) {
	const deep = 1_000_000_000_000_000_000
	tests := []struct {
		name     string
		reserves [Coins]sdkmath.Int
		params   types.StableParams
	}{
		{"zero base reserve", reserves(0, deep), flatParams(100, 4)},
		{"zero quote reserve", reserves(deep, 0), flatParams(100, 4)},
		{"zero amplification", reserves(deep, deep), flatParams(0, 4)},
		{"missing amplification", reserves(deep, deep), types.StableParams{}},
		{"shallow pool", reserves(1_000, 1_000), flatParams(100, 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CalculatePrice(tt.reserves, tt.params, time.Now())
			var target *types.InvalidPoolStateError
			if !errors.As(err, &target) {
				t.Errorf("CalculatePrice() error = %v, want InvalidPoolStateError", err)
			}
		})
	}
}

func TestImpliedVolumes(t *testing.T) {
	const deep = 1_000_000_000_000_000_000
	vol, quote, err := ImpliedVolumes(reserves(deep, deep), flatParams(100, 0), time.Now())
	if err != nil {
		t.Fatalf("ImpliedVolumes() error = %v", err)
	}
	if !vol.Equal(sdkmath.NewInt(deep)) {
		t.Errorf("ImpliedVolumes() volume = %v, want %v", vol, deep)
	}
	diff := quote.Sub(vol).Abs()
	if diff.GT(vol.QuoRaw(1_000)) {
		t.Errorf("ImpliedVolumes() quote = %v, want close to %v", quote, vol)
	}
}
