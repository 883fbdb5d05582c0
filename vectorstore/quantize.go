package vectorstore

import "math"

// Quantized is the 8-bit affine representation of a float vector:
// value ≈ (Q[i] - Zero) * Scale.
type Quantized struct {
	Q     []byte  `msgpack:"q"`
	Scale float32 `msgpack:"scale"`
	Zero  int32   `msgpack:"zero"`
}

// Quantize compresses v into 8-bit affine form.
//
// Scale is (max-min)/255, or 1 when the range is degenerate; Zero is
// round(-min/scale). Reconstruction error is at most half a quantization
// step per component.
func Quantize(v []float32) Quantized {
	if len(v) == 0 {
		return Quantized{Scale: 1}
	}

	minV, maxV := v[0], v[0]
	for _, x := range v[1:] {
		if x < minV {
			minV = x
		}
		if x > maxV {
			maxV = x
		}
	}

	scale := (maxV - minV) / 255
	if scale == 0 || math.IsInf(float64(scale), 0) || math.IsNaN(float64(scale)) {
		scale = 1
	}
	zero := int32(math.Round(float64(-minV) / float64(scale)))

	q := make([]byte, len(v))
	for i, x := range v {
		step := math.Round(float64(x)/float64(scale)) + float64(zero)
		if step < 0 {
			step = 0
		} else if step > 255 {
			step = 255
		}
		q[i] = byte(step)
	}
	return Quantized{Q: q, Scale: scale, Zero: zero}
}

// Dequantize reconstructs the approximate float vector.
func (q Quantized) Dequantize() []float32 {
	out := make([]float32, len(q.Q))
	for i, b := range q.Q {
		out[i] = float32(int32(b)-q.Zero) * q.Scale
	}
	return out
}
