package pattern

import (
	"errors"
	"math"
	"time"
)

// Sample 一个 (日期, 小时) 聚合单元内观测到的访问强度
type Sample struct {
	Hour      int          // 当地时间小时 [0, 23]
	Weekday   time.Weekday // 星期几
	Intensity float64      // 该小时内的访问次数
}

// Features 预测模型的周期性时间特征。
// 小时和星期都映射到单位圆上，避免 23 点与 0 点之间出现人为断层。
type Features struct {
	HourSin float64
	HourCos float64
	DowSin  float64
	DowCos  float64
}

// TimeFeatures 从时间点提取周期特征
func TimeFeatures(t time.Time) Features {
	hour := float64(t.Hour())
	dow := float64(t.Weekday())

	return Features{
		HourSin: math.Sin(2 * math.Pi * hour / 24),
		HourCos: math.Cos(2 * math.Pi * hour / 24),
		DowSin:  math.Sin(2 * math.Pi * dow / 7),
		DowCos:  math.Cos(2 * math.Pi * dow / 7),
	}
}

func (s Sample) features() Features {
	hour := float64(s.Hour)
	dow := float64(s.Weekday)

	return Features{
		HourSin: math.Sin(2 * math.Pi * hour / 24),
		HourCos: math.Cos(2 * math.Pi * hour / 24),
		DowSin:  math.Sin(2 * math.Pi * dow / 7),
		DowCos:  math.Cos(2 * math.Pi * dow / 7),
	}
}

// Model 已拟合的单键模式预测模型
type Model interface {
	// Predict 预测给定时间特征下的访问强度
	Predict(f Features) float64

	// Confidence 模型自身的拟合优度，已钳制到 [0.1, 0.9]
	Confidence() float64
}

// Forecaster 可插拔的模型拟合器。
// 具体回归方法是实现细节，调度逻辑只依赖 Model 的两个输出。
type Forecaster interface {
	Fit(samples []Sample) (Model, error)
}

var (
	// ErrTooFewSamples 样本不足以拟合
	ErrTooFewSamples = errors.New("too few samples to fit")
)

const (
	confidenceFloor = 0.1
	confidenceCeil  = 0.9

	// ridgeLambda 很小的岭回归正则项，保证正规方程在特征退化
	// （如所有样本集中在同一小时）时仍然可解
	ridgeLambda = 1e-3
)

// LeastSquaresForecaster 带轻微正则化的最小二乘拟合器，
// 求解 (XᵀX + λI)β = Xᵀy，特征为 [1, sin h, cos h, sin d, cos d]。
type LeastSquaresForecaster struct{}

// NewLeastSquaresForecaster 创建默认拟合器
func NewLeastSquaresForecaster() *LeastSquaresForecaster {
	return &LeastSquaresForecaster{}
}

const numCoef = 5

// Fit 拟合样本，返回模型及其拟合优度
func (f *LeastSquaresForecaster) Fit(samples []Sample) (Model, error) {
	if len(samples) < 3 {
		return nil, ErrTooFewSamples
	}

	// 累积正规方程 XᵀX 和 Xᵀy
	var xtx [numCoef][numCoef]float64
	var xty [numCoef]float64

	for _, s := range samples {
		feat := s.features()
		row := [numCoef]float64{1, feat.HourSin, feat.HourCos, feat.DowSin, feat.DowCos}
		for i := 0; i < numCoef; i++ {
			for j := 0; j < numCoef; j++ {
				xtx[i][j] += row[i] * row[j]
			}
			xty[i] += row[i] * s.Intensity
		}
	}

	for i := 0; i < numCoef; i++ {
		xtx[i][i] += ridgeLambda
	}

	coef, err := solve(xtx, xty)
	if err != nil {
		return nil, err
	}

	model := &lsModel{coef: coef}

	// 拟合优度 R² = 1 - SSres/SStot，钳制到 [0.1, 0.9]。
	// 目标值无方差时，残差近零视为完全拟合，否则视为无解释力。
	var mean float64
	for _, s := range samples {
		mean += s.Intensity
	}
	mean /= float64(len(samples))

	var ssRes, ssTot float64
	for _, s := range samples {
		pred := model.Predict(s.features())
		ssRes += (s.Intensity - pred) * (s.Intensity - pred)
		ssTot += (s.Intensity - mean) * (s.Intensity - mean)
	}

	var r2 float64
	const eps = 1e-9
	if ssTot < eps {
		// 目标值无方差：残差相对总量近零视为完全拟合
		var ssY float64
		for _, s := range samples {
			ssY += s.Intensity * s.Intensity
		}
		if ssY < eps || ssRes/ssY < 1e-6 {
			r2 = 1.0
		} else {
			r2 = 0.0
		}
	} else {
		r2 = 1.0 - ssRes/ssTot
	}

	model.confidence = clamp(r2, confidenceFloor, confidenceCeil)
	return model, nil
}

// lsModel 最小二乘模型
type lsModel struct {
	coef       [numCoef]float64
	confidence float64
}

func (m *lsModel) Predict(f Features) float64 {
	pred := m.coef[0] +
		m.coef[1]*f.HourSin +
		m.coef[2]*f.HourCos +
		m.coef[3]*f.DowSin +
		m.coef[4]*f.DowCos

	// 访问强度不为负
	if pred < 0 {
		return 0
	}
	return pred
}

func (m *lsModel) Confidence() float64 {
	return m.confidence
}

// solve 高斯消元求解 5x5 线性方程组
func solve(a [numCoef][numCoef]float64, b [numCoef]float64) ([numCoef]float64, error) {
	var x [numCoef]float64

	for col := 0; col < numCoef; col++ {
		// 选主元
		pivot := col
		for row := col + 1; row < numCoef; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return x, errors.New("singular system")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < numCoef; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < numCoef; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}

	// 回代
	for row := numCoef - 1; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < numCoef; k++ {
			sum -= a[row][k] * x[k]
		}
		x[row] = sum / a[row][row]
	}

	return x, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ Forecaster = (*LeastSquaresForecaster)(nil)
