package audio

// Smoothstep returns the smoothstep interpolation for t in [0,1].
// Formula: 3t^2 - 2t^3.
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// MixInto adds src into acc, moving the gain from `from` to `to` across the
// frame on a smoothstep curve so volume steps never click. acc and src must
// have the same length of interleaved stereo samples.
func MixInto(acc []int32, src []int16, from, to float64) {
	frames := len(src) / Channels
	if frames == 0 {
		return
	}
	if from == to {
		for i, s := range src {
			acc[i] += int32(float64(s) * to)
		}
		return
	}
	for f := 0; f < frames; f++ {
		g := from + (to-from)*Smoothstep(float64(f+1)/float64(frames))
		for c := 0; c < Channels; c++ {
			i := f*Channels + c
			acc[i] += int32(float64(src[i]) * g)
		}
	}
}

// Clip writes acc into dst, saturating to the int16 range.
func Clip(dst []int16, acc []int32) {
	for i, v := range acc {
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		dst[i] = int16(v)
	}
}
