package curve

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"stablePool/internal/mathutil"
)

var e18 = uint256.NewInt(1_000_000_000_000_000_000)

func u(t testing.TB, value string) *uint256.Int {
	t.Helper()
	x, err := mathutil.Parse(value)
	if err != nil {
		t.Fatalf("parse %s: %v", value, err)
	}
	return x
}

func vec(t testing.TB, values ...string) []*uint256.Int {
	t.Helper()
	out := make([]*uint256.Int, len(values))
	for i, v := range values {
		out[i] = u(t, v)
	}
	return out
}

func TestComputeDReferenceValues(t *testing.T) {
	cases := []struct {
		name string
		xp   []string
		amp  uint64
		want string
	}{
		{"balanced", []string{"1000000000000000000", "1000000000000000000"}, 50, "2000000000000000000"},
		{"three tokens", []string{"3000000000000000000", "500000000000000000", "1000000000000000000"}, 100, "4481733771885398060"},
		{"low amplification", []string{"1000000000000000000", "1500000000000000000"}, 1, "2474551896384313561"},
		{"large reserves", []string{"1000000000000000000000000", "1000000000000000000000000"}, 1000, "2000000000000000000000000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := ComputeD(vec(t, tc.xp...), uint256.NewInt(tc.amp))
			if err != nil {
				t.Fatalf("compute D: %v", err)
			}
			require.Equal(t, tc.want, mathutil.Format(d))
		})
	}
}

func TestComputeDEdgeCases(t *testing.T) {
	d, err := ComputeD(vec(t, "0", "0"), uint256.NewInt(50))
	require.NoError(t, err)
	require.True(t, d.IsZero())

	_, err = ComputeD(vec(t, "1000", "0"), uint256.NewInt(50))
	require.ErrorIs(t, err, ErrZeroBalance)

	_, err = ComputeD(vec(t, "1000", "1000"), new(uint256.Int))
	require.ErrorIs(t, err, ErrAmplification)
}

func TestComputeYReferenceValues(t *testing.T) {
	y, err := ComputeY(0, 1, u(t, "1100000000000000000"), vec(t, "1000000000000000000", "1000000000000000000"), uint256.NewInt(50))
	require.NoError(t, err)
	require.Equal(t, "900197586023458169", mathutil.Format(y))

	y, err = ComputeY(2, 0, u(t, "1500000000000000000"), vec(t, "3000000000000000000", "500000000000000000", "1000000000000000000"), uint256.NewInt(100))
	require.NoError(t, err)
	require.Equal(t, "2493428938060635208", mathutil.Format(y))
}

func TestComputeYRejectsBadIndices(t *testing.T) {
	xp := vec(t, "1000", "1000")
	amp := uint256.NewInt(50)
	for _, idx := range [][2]int{{0, 0}, {-1, 1}, {0, 2}, {2, 0}} {
		_, err := ComputeY(idx[0], idx[1], uint256.NewInt(1100), xp, amp)
		if !errors.Is(err, ErrIndex) {
			t.Fatalf("indices %v: expected ErrIndex, got %v", idx, err)
		}
	}
	_, err := ComputeYGivenD(amp, 2, xp, uint256.NewInt(2000))
	require.ErrorIs(t, err, ErrIndex)
}

func TestComputeYGivenDReferenceValue(t *testing.T) {
	y, err := ComputeYGivenD(uint256.NewInt(50), 1, vec(t, "1000000000000000000", "1000000000000000000"), u(t, "1500000000000000000"))
	require.NoError(t, err)
	require.Equal(t, "501813998850814068", mathutil.Format(y))

	_, err = ComputeYGivenD(uint256.NewInt(50), 1, vec(t, "0", "1000"), uint256.NewInt(2000))
	require.ErrorIs(t, err, ErrZeroBalance)
}

// drawPool generates a near-balanced pool: each reserve sits within 25% above
// a common base between 1 and 1e6 whole tokens.
func drawPool(t *rapid.T) ([]*uint256.Int, *uint256.Int) {
	n := rapid.IntRange(2, 3).Draw(t, "n")
	amp := uint256.NewInt(rapid.Uint64Range(50, 1000).Draw(t, "amp"))
	base := new(uint256.Int).Mul(uint256.NewInt(rapid.Uint64Range(1, 1_000_000).Draw(t, "base")), e18)
	xp := make([]*uint256.Int, n)
	for i := range xp {
		spread := uint256.NewInt(rapid.Uint64Range(0, 1_000_000_000_000_000_000).Draw(t, "spread"))
		extra := new(uint256.Int).Mul(base, spread)
		extra.Div(extra, e18)
		extra.Div(extra, uint256.NewInt(4))
		xp[i] = new(uint256.Int).Add(base, extra)
	}
	return xp, amp
}

func TestComputeDBalancedEqualsSum(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 5).Draw(t, "n")
		amp := uint256.NewInt(rapid.Uint64Range(1, 1_000_000).Draw(t, "amp"))
		x := uint256.NewInt(rapid.Uint64Range(1, 1<<62).Draw(t, "x"))
		xp := make([]*uint256.Int, n)
		for i := range xp {
			xp[i] = x.Clone()
		}
		d, err := ComputeD(xp, amp)
		if err != nil {
			t.Fatalf("compute D: %v", err)
		}
		want := new(uint256.Int).Mul(x, uint256.NewInt(uint64(n)))
		if !d.Eq(want) {
			t.Fatalf("balanced D %s, want %s", mathutil.Format(d), mathutil.Format(want))
		}
	})
}

func TestComputeYKeepsInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		xp, amp := drawPool(t)
		n := len(xp)
		from := rapid.IntRange(0, n-1).Draw(t, "from")
		to := (from + 1 + rapid.IntRange(0, n-2).Draw(t, "offset")) % n

		d, err := ComputeD(xp, amp)
		if err != nil {
			t.Fatalf("compute D: %v", err)
		}
		// trade up to 5% of the input reserve
		dx := new(uint256.Int).Div(xp[from], uint256.NewInt(20))
		dx.Mul(dx, uint256.NewInt(rapid.Uint64Range(1, 1_000_000_000_000_000_000).Draw(t, "fraction")))
		dx.Div(dx, e18)
		dx.AddUint64(dx, 1)
		x := new(uint256.Int).Add(xp[from], dx)

		y, err := ComputeY(from, to, x, xp, amp)
		if err != nil {
			t.Fatalf("compute y: %v", err)
		}
		moved := mathutil.CloneAll(xp)
		moved[from] = x
		moved[to] = y
		after, err := ComputeD(moved, amp)
		if err != nil {
			t.Fatalf("compute D after: %v", err)
		}
		if !mathutil.Within1(after, d) {
			t.Fatalf("invariant moved from %s to %s", mathutil.Format(d), mathutil.Format(after))
		}
	})
}

func TestComputeYGivenDHitsTarget(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		xp, amp := drawPool(t)
		idx := rapid.IntRange(0, len(xp)-1).Draw(t, "idx")
		d, err := ComputeD(xp, amp)
		if err != nil {
			t.Fatalf("compute D: %v", err)
		}
		// lower the target by up to 10%
		cut := new(uint256.Int).Mul(d, uint256.NewInt(rapid.Uint64Range(0, 100_000_000_000_000_000).Draw(t, "cut")))
		cut.Div(cut, e18)
		target := new(uint256.Int).Sub(d, cut)

		y, err := ComputeYGivenD(amp, idx, xp, target)
		if err != nil {
			t.Fatalf("compute y: %v", err)
		}
		moved := mathutil.CloneAll(xp)
		moved[idx] = y
		after, err := ComputeD(moved, amp)
		if err != nil {
			t.Fatalf("compute D after: %v", err)
		}
		if !mathutil.Within1(after, target) {
			t.Fatalf("invariant %s, target %s", mathutil.Format(after), mathutil.Format(target))
		}
	})
}

func TestComputeDIsIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		xp, amp := drawPool(t)
		original := mathutil.CloneAll(xp)
		first, err := ComputeD(xp, amp)
		if err != nil {
			t.Fatalf("compute D: %v", err)
		}
		second, err := ComputeD(mathutil.CloneAll(xp), amp)
		if err != nil {
			t.Fatalf("compute D again: %v", err)
		}
		if !mathutil.Within1(first, second) {
			t.Fatalf("D %s then %s", mathutil.Format(first), mathutil.Format(second))
		}
		for i := range xp {
			if !xp[i].Eq(original[i]) {
				t.Fatalf("balance %d changed to %s", i, mathutil.Format(xp[i]))
			}
		}
	})
}

func TestIterationCapReportsNotConverged(t *testing.T) {
	saved := maxIterations
	maxIterations = 1
	defer func() { maxIterations = saved }()

	xp := vec(t, "1000000000000000000", "1500000000000000000")
	amp := uint256.NewInt(1)

	_, err := ComputeD(xp, amp)
	require.ErrorIs(t, err, ErrNotConverged)

	_, err = ComputeY(0, 1, u(t, "1100000000000000000"), xp, amp)
	require.ErrorIs(t, err, ErrNotConverged)

	_, err = ComputeYGivenD(amp, 1, xp, u(t, "2000000000000000000"))
	require.ErrorIs(t, err, ErrNotConverged)

	// a balanced pool settles on the first step
	d, err := ComputeD(vec(t, "1000", "1000"), amp)
	require.NoError(t, err)
	require.Equal(t, "2000", mathutil.Format(d))
}
