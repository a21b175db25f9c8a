package noise

// FBM sums octaves of src at increasing frequency and decreasing amplitude
// and normalizes by the accumulated amplitude, keeping the result in roughly
// [-1, 1]. A single octave degenerates to src.Sample(x*baseFreq, y*baseFreq)
// exactly; zero or negative octaves return 0.
func FBM(src Sampler2D, x, y float64, octaves int, baseFreq, persistence, lacunarity float64) float64 {
	if octaves <= 0 {
		return 0
	}

	freq := baseFreq
	amplitude := 1.0
	sum := 0.0
	maxAmplitude := 0.0

	for i := 0; i < octaves; i++ {
		sum += src.Sample(x*freq, y*freq) * amplitude
		maxAmplitude += amplitude
		freq *= lacunarity
		amplitude *= persistence
	}

	if maxAmplitude == 0 {
		return 0
	}
	return sum / maxAmplitude
}

// RidgedFBM folds the underlying field with 1-|n| before accumulation so
// crests form sharp creases instead of smooth lobes. Output is in [0, 1].
func RidgedFBM(src Sampler2D, x, y float64, octaves int, baseFreq, persistence, lacunarity float64) float64 {
	if octaves <= 0 {
		return 0
	}

	freq := baseFreq
	amplitude := 1.0
	sum := 0.0
	maxAmplitude := 0.0

	for i := 0; i < octaves; i++ {
		n := src.Sample(x*freq, y*freq)
		if n < 0 {
			n = -n
		}
		sum += (1 - n) * amplitude
		maxAmplitude += amplitude
		freq *= lacunarity
		amplitude *= persistence
	}

	if maxAmplitude == 0 {
		return 0
	}
	return sum / maxAmplitude
}
