package metrics

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/neurocpm/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// PearsonR はピアソンの積率相関係数と、無相関検定の両側p値を返す。
//
// p値は二変量正規性の仮定の下での t 検定（自由度 n-2）による。
// n = 2 のとき相関は常に ±1 となり検定が定義できないため p = 1 を返す。
// |r| = 1 のとき p = 0。
func PearsonR(x, y []float64) (r, p float64, err error) {
	n := len(x)
	if len(y) != n {
		return 0, 0, errors.NewDimensionError("PearsonR", n, len(y), 0)
	}
	if n < 2 {
		return 0, 0, errors.NewDegenerateInputError("PearsonR", "at least 2 observations are required", -1)
	}
	if err := errors.CheckNumericalStability("PearsonR", x, 0); err != nil {
		return 0, 0, err
	}
	if err := errors.CheckNumericalStability("PearsonR", y, 0); err != nil {
		return 0, 0, err
	}
	if isConstant(x) || isConstant(y) {
		return 0, 0, errors.NewDegenerateInputError("PearsonR", "zero variance input, correlation is undefined", -1)
	}

	r = errors.ClipValue(stat.Correlation(x, y, nil), -1, 1)
	return r, PearsonPValue(r, n), nil
}

// PearsonPValue は n 組の観測から得た相関係数 r の両側p値を返す。
func PearsonPValue(r float64, n int) float64 {
	if n <= 2 {
		return 1
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/((1-r)*(1+r)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	return math.Min(1, 2*dist.Survival(math.Abs(t)))
}

func isConstant(v []float64) bool {
	return floats.Max(v) == floats.Min(v)
}

// KSDistance は2標本コルモゴロフ–スミルノフ統計量
// （2つの経験分布関数の差の最大値）を計算する。値域は [0, 1]。
func KSDistance(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, errors.NewValueError("KSDistance", "empty sample")
	}
	if err := errors.CheckNumericalStability("KSDistance", a, 0); err != nil {
		return 0, err
	}
	if err := errors.CheckNumericalStability("KSDistance", b, 0); err != nil {
		return 0, err
	}

	// stat.KolmogorovSmirnov はソート済みの入力を要求する
	as := append([]float64(nil), a...)
	bs := append([]float64(nil), b...)
	sort.Float64s(as)
	sort.Float64s(bs)

	return stat.KolmogorovSmirnov(as, nil, bs, nil), nil
}
