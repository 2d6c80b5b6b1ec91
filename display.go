package waveseq

import (
	"math"

	"github.com/outofforest/waveseq/samples"
)

// minMaxSumsq accumulates over a run of raw samples (divisor 1) or summary
// triples (divisor 256 or 65536).
type minMaxSumsq struct {
	min   float32
	max   float32
	sumsq float32
}

func newMinMaxSumsq(pv []float32, count, divisor int) minMaxSumsq {
	r := minMaxSumsq{
		min:   math.MaxFloat32,
		max:   -math.MaxFloat32,
		sumsq: 0,
	}
	i := 0
	for ; count > 0; count-- {
		switch divisor {
		case 1:
			v := pv[i]
			i++
			if v < r.min {
				r.min = v
			}
			if v > r.max {
				r.max = v
			}
			r.sumsq += v * v
		default:
			v := pv[i]
			i++
			if v < r.min {
				r.min = v
			}
			v = pv[i]
			i++
			if v > r.max {
				r.max = v
			}
			v = pv[i]
			i++
			r.sumsq += v * v
		}
	}
	return r
}

// GetWaveDisplay fills per-column min, max and rms values for waveform
// rendering. Column p covers samples [where[p], where[p+1]). Each block
// contributes through raw samples or the decimation level matching the zoom.
// blockStatus[p] receives the block index serving the column, or -1-index
// when that block's summary is not computed yet and the caller should retry
// later. Returns false when no requested sample is in range.
func (s *Sequence) GetWaveDisplay(min, max, rms []float32, blockStatus []int, where []int64) bool {
	display := len(min)
	if display == 0 {
		return false
	}

	s0 := where[0]
	if s0 < 0 {
		s0 = 0
	}
	if s0 >= s.numSamples {
		// None of the samples asked for are in range.
		return false
	}

	// In case where[display-1] == where[display], raise the limit by one so
	// the last column loads at least one sample.
	s1 := where[display]
	if 1+where[display-1] > s1 {
		s1 = 1 + where[display-1]
	}
	if s1 > s.numSamples {
		s1 = s.numSamples
	}

	temp := make([]float32, 3*s.maxSamples)
	tempBytes := make([]byte, samples.BufferSize(s.maxSamples, samples.Float32))

	pixel := 0
	srcX := s0
	var nextSrcX int64
	lastRmsDenom := 0
	lastDivisor := 0
	whereNow := where[0]
	if s1-1 < whereNow {
		whereNow = s1 - 1
	}
	var whereNext int64

	nBlocks := len(s.blocks)
	block0 := s.findBlock(s0)

	for b := block0; b < nBlocks; b++ {
		if b > block0 {
			srcX = nextSrcX
		}
		if srcX >= s1 {
			break
		}

		seqBlock := s.blocks[b]
		start := seqBlock.Start
		nextSrcX = start + int64(seqBlock.File.Length())
		if nextSrcX > s1 {
			nextSrcX = s1
		}

		// The range of columns whose starting samples this block covers.
		var nextPixel int
		if nextSrcX >= s1 {
			nextPixel = display
		} else {
			nextPixel = pixel
			for nextPixel < display {
				whereNext = where[nextPixel]
				if s1-1 < whereNext {
					whereNext = s1 - 1
				}
				if whereNext >= nextSrcX {
					break
				}
				nextPixel++
			}
		}
		if nextPixel == pixel {
			// The entire block falls within one column. Omitting its
			// contents is not correct, but correctness is not worth the
			// compute time when this happens every column.
			continue
		}
		if nextPixel == display {
			whereNext = s1
		}

		// Decide the summary level.
		samplesPerPixel := float64(whereNext-whereNow) / float64(nextPixel-pixel)
		divisor := 1
		switch {
		case samplesPerPixel >= 65536:
			divisor = 65536
		case samplesPerPixel >= 256:
			divisor = 256
		}

		status := b

		startPosition := (srcX - start) / int64(divisor)
		if startPosition < 0 {
			startPosition = 0
		}
		inclusiveEndPosition := (nextSrcX - 1 - start) / int64(divisor)
		if limit := int64(s.maxSamples)/int64(divisor) - 1; inclusiveEndPosition > limit {
			inclusiveEndPosition = limit
		}
		num := int(1 + inclusiveEndPosition - startPosition)
		if num <= 0 {
			for pixel < nextPixel {
				min[pixel], max[pixel], rms[pixel] = 0, 0, 0
				blockStatus[pixel] = status
				pixel++
			}
			continue
		}

		switch divisor {
		case 1:
			// Display reads never throw; failures render as silence.
			_, _ = s.readBlock(tempBytes, samples.Float32, seqBlock, int(startPosition), num, false)
			samples.ToFloats(tempBytes, samples.Float32, temp, num)
		case 256:
			if seqBlock.File.IsSummaryAvailable() {
				// Fills with zeroes when the read fails.
				seqBlock.File.Read256(temp, int(startPosition), num)
			} else {
				// Mark the display as not yet computed.
				status = -1 - b
			}
		default:
			if seqBlock.File.IsSummaryAvailable() {
				seqBlock.File.Read64K(temp, int(startPosition), num)
			} else {
				status = -1 - b
			}
		}

		filePosition := startPosition

		// The previous column might straddle blocks; impute this block's
		// leading data to it.
		if b > block0 && pixel > 0 {
			midPosition := (whereNow - start) / int64(divisor)
			diff := int(midPosition - filePosition)
			if diff > 0 {
				values := newMinMaxSumsq(temp, diff, divisor)
				lastPixel := pixel - 1
				if values.min < min[lastPixel] {
					min[lastPixel] = values.min
				}
				if values.max > max[lastPixel] {
					max[lastPixel] = values.max
				}
				lastNumSamples := lastRmsDenom * lastDivisor
				rms[lastPixel] = float32(math.Sqrt(
					float64(rms[lastPixel]*rms[lastPixel]*float32(lastNumSamples)+values.sumsq*float32(divisor)) /
						float64(lastNumSamples+diff*divisor)))

				filePosition = midPosition
			}
		}

		rmsDenom := 0
		for filePosition <= inclusiveEndPosition {
			// The columns served by this file position: normally one, but
			// more when zoomed in close.
			pixelX := pixel + 1
			var positionX int64
			for pixelX < nextPixel {
				w := where[pixelX]
				if s1-1 < w {
					w = s1 - 1
				}
				positionX = (w - start) / int64(divisor)
				if positionX != filePosition {
					break
				}
				pixelX++
			}
			if pixelX >= nextPixel {
				positionX = 1 + inclusiveEndPosition
			}

			rmsDenom = int(positionX - filePosition)
			stride := 1
			if divisor > 1 {
				stride = 3
			}
			pv := temp[int(filePosition-startPosition)*stride:]
			values := newMinMaxSumsq(pv, rmsDenom, divisor)

			columnRMS := float32(math.Sqrt(float64(values.sumsq) / float64(rmsDenom)))
			for p := pixel; p < pixelX; p++ {
				min[p] = values.min
				max[p] = values.max
				rms[p] = columnRMS
				blockStatus[p] = status
			}

			pixel = pixelX
			filePosition = positionX
		}

		whereNow = whereNext
		pixel = nextPixel
		lastDivisor = divisor
		lastRmsDenom = rmsDenom
	}

	return true
}
