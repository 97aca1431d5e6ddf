package model

import "gonum.org/v1/gonum/mat"

// LinearModel は切片付き線形モデルのインターフェース。
// X は 観測 × 特徴量、y は 観測 × 1 の列ベクトル。
type LinearModel interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
	// GetWeights は学習された重み（係数）を返す
	GetWeights() []float64
	// GetIntercept は学習された切片を返す
	GetIntercept() float64
}
