package errors

import (
	"math"
)

// maxReported は NumericalInstabilityError に載せる非有限値の上限。
const maxReported = 10

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CheckNumericalStability は値に NaN / Inf が含まれていればエラーを返す。
// iteration にはフォールド番号などの位置を渡す。
func CheckNumericalStability(operation string, values []float64, iteration int) error {
	var bad []float64
	for _, v := range values {
		if !isFinite(v) {
			bad = append(bad, v)
			if len(bad) == maxReported {
				break
			}
		}
	}
	if len(bad) > 0 {
		return NewNumericalInstabilityError(operation, bad, iteration)
	}
	return nil
}

// CheckScalar は単一の値を検査する。
func CheckScalar(operation string, value float64, iteration int) error {
	if !isFinite(value) {
		return NewNumericalInstabilityError(operation, []float64{value}, iteration)
	}
	return nil
}

// CheckMatrix は行列全体を行優先で走査し、非有限値を最大 maxReported 個まで報告する。
func CheckMatrix(operation string, matrix interface{ At(int, int) float64 }, rows, cols, iteration int) error {
	var bad []float64
scan:
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := matrix.At(i, j); !isFinite(v) {
				bad = append(bad, v)
				if len(bad) == maxReported {
					break scan
				}
			}
		}
	}
	if len(bad) > 0 {
		return NewNumericalInstabilityError(operation, bad, iteration)
	}
	return nil
}

// ClipValue は value を [lo, hi] に収める。
func ClipValue(value, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, value))
}
