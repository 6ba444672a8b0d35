package journal

import (
	"math/big"
	"testing"
)

func TestSimpleInterestWei(t *testing.T) {
	weiPerEth := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	// 1 ETH at 12% for a full year is exactly 0.12 ETH
	got := SimpleInterestWei(weiPerEth, 1200, secondsPerYear)
	want := new(big.Int).Mul(big.NewInt(12), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
	if got.Cmp(want) != 0 {
		t.Fatalf("full year: got %s, want %s", got, want)
	}

	// one day of the same loan
	got = SimpleInterestWei(weiPerEth, 1200, secondsPerDay)
	want = new(big.Int).Div(new(big.Int).Mul(weiPerEth, big.NewInt(1200*secondsPerDay)), big.NewInt(10000*secondsPerYear))
	if got.Cmp(want) != 0 {
		t.Fatalf("one day: got %s, want %s", got, want)
	}

	for name, got := range map[string]*big.Int{
		"nil principal":  SimpleInterestWei(nil, 1200, secondsPerDay),
		"zero principal": SimpleInterestWei(big.NewInt(0), 1200, secondsPerDay),
		"zero apr":       SimpleInterestWei(weiPerEth, 0, secondsPerDay),
		"zero elapsed":   SimpleInterestWei(weiPerEth, 1200, 0),
	} {
		if got.Sign() != 0 {
			t.Fatalf("%s: got %s, want 0", name, got)
		}
	}
}

func TestSimpleInterestWeiFloors(t *testing.T) {
	// tiny principal over one second cannot round up
	got := SimpleInterestWei(big.NewInt(3), 1, 1)
	if got.Sign() != 0 {
		t.Fatalf("expected floor to zero, got %s", got)
	}
}

func TestProrateDailyExactSum(t *testing.T) {
	// start mid-day, end mid-day three days later; total does not
	// divide evenly across the covered seconds
	start := uint64(1700000000)
	asOf := start + 3*secondsPerDay + 7200
	total := big.NewInt(1000000000000000001)

	buckets := prorateDaily(total, start, asOf)
	if len(buckets) != 5 {
		t.Fatalf("expected 5 day buckets, got %d", len(buckets))
	}

	sum := big.NewInt(0)
	for i, bucket := range buckets {
		if bucket.Day%secondsPerDay != 0 {
			t.Fatalf("bucket %d day %d is not UTC midnight", i, bucket.Day)
		}
		if i > 0 && bucket.Day != buckets[i-1].Day+secondsPerDay {
			t.Fatalf("bucket %d day %d does not follow %d", i, bucket.Day, buckets[i-1].Day)
		}
		sum.Add(sum, bucket.Wei)
	}
	if sum.Cmp(total) != 0 {
		t.Fatalf("buckets sum to %s, want %s", sum, total)
	}

	if buckets[0].Day != start-start%secondsPerDay {
		t.Fatalf("first bucket day %d, want %d", buckets[0].Day, start-start%secondsPerDay)
	}
}

func TestProrateDailyWeighting(t *testing.T) {
	// exactly two full days from a UTC midnight: equal halves
	start := uint64(1700006400)
	asOf := start + 2*secondsPerDay
	total := big.NewInt(1000)

	buckets := prorateDaily(total, start, asOf)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].Wei.Cmp(big.NewInt(500)) != 0 || buckets[1].Wei.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected equal halves, got %s and %s", buckets[0].Wei, buckets[1].Wei)
	}
}

func TestProrateDailyDegenerate(t *testing.T) {
	if got := prorateDaily(nil, 0, secondsPerDay); got != nil {
		t.Fatalf("nil total: %+v", got)
	}
	if got := prorateDaily(big.NewInt(0), 0, secondsPerDay); got != nil {
		t.Fatalf("zero total: %+v", got)
	}
	if got := prorateDaily(big.NewInt(100), secondsPerDay, secondsPerDay); got != nil {
		t.Fatalf("empty window: %+v", got)
	}
}
