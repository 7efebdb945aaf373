package consensus

import "github.com/mwc-validation-node/go-node/model"

// damp and clamp implement §4.5's formulas exactly:
//
//	damp(x,goal,f)  = (x + (f-1)*goal) / f
//	clamp(x,goal,f) = max(goal/f, min(x, goal*f))
func damp(x, goal, f uint64) uint64 {
	return (x + (f-1)*goal) / f
}

func clamp(x, goal, f uint64) uint64 {
	lo := goal / f
	hi := goal * f
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// WindowEntry is one header's contribution to the retarget window:
// either a real ancestor header or a synthetic pre-genesis entry (§8's
// "Empty genesis" edge case), which repeats the genesis header's
// difficulty/scaling/timestamp spacing so a chain with fewer than
// DIFFICULTY_ADJUSTMENT_WINDOW headers still retargets sanely.
type WindowEntry struct {
	Timestamp        int64
	TotalDifficulty  uint64
	SecondaryScaling uint32
	EdgeBits         uint8
}

// RetargetWindow builds the last W window entries ending at (and
// including) previous, synthesizing pre-genesis entries from genesis when
// the chain is shorter than the window (§8 "Empty genesis").
func (p *Params) RetargetWindow(ancestors []WindowEntry, genesis model.Header) []WindowEntry {
	w := int(p.DifficultyAdjustmentWindow)
	if len(ancestors) >= w {
		return ancestors[len(ancestors)-w:]
	}
	missing := w - len(ancestors)
	out := make([]WindowEntry, 0, w)
	for i := 0; i < missing; i++ {
		out = append(out, WindowEntry{
			Timestamp:        genesis.Timestamp - int64(missing-i)*p.BlockTimeSeconds,
			TotalDifficulty:  genesis.TotalDifficulty,
			SecondaryScaling: genesis.SecondaryScaling,
			EdgeBits:         genesis.EdgeBits,
		})
	}
	return append(out, ancestors...)
}

// Retarget computes the difficulty and secondary scaling for the block
// following the given window, per §4.5 steps 1-6. The window's final (most
// recent) entry stands for the previous header; its timestamp ends the
// window duration.
func (p *Params) Retarget(height uint64, window []WindowEntry) (targetDifficulty uint64, secondaryScaling uint32) {
	w := uint64(len(window))
	if w == 0 {
		return p.MinimumDifficulty, p.MinimumSecondaryScaling
	}

	var scalingSum, difficultyDeltaSum uint64
	var c29Count uint64
	for i, e := range window {
		scalingSum += uint64(e.SecondaryScaling)
		if e.EdgeBits == p.C29EdgeBits {
			c29Count++
		}
		if i > 0 {
			prev := window[i-1]
			if e.TotalDifficulty > prev.TotalDifficulty {
				difficultyDeltaSum += e.TotalDifficulty - prev.TotalDifficulty
			}
		}
	}
	if len(window) > 0 {
		// The window's own leading edge contributes its per-block
		// difficulty too: approximate it with the first entry's delta to
		// its predecessor, which RetargetWindow already guarantees exists
		// (real ancestor or synthetic).
		difficultyDeltaSum += window[0].TotalDifficulty
	}

	targetC29 := p.C29Ratio(height)
	targetC29Count := w * targetC29 / 100
	c29Adj := clamp(
		damp(c29Count*100, targetC29Count, p.C29HeadersAdjustmentDampFactor),
		targetC29Count,
		p.C29HeadersAdjustmentClampFactor,
	)
	if c29Adj == 0 {
		c29Adj = 1
	}

	secondaryScaling = uint32(scalingSum * targetC29 / c29Adj)
	if secondaryScaling < p.MinimumSecondaryScaling {
		secondaryScaling = p.MinimumSecondaryScaling
	}

	windowDuration := window[len(window)-1].Timestamp - window[0].Timestamp
	if windowDuration < 0 {
		windowDuration = 0
	}
	goalDuration := w * uint64(p.BlockTimeSeconds)
	windowAdj := clamp(
		damp(uint64(windowDuration), goalDuration, p.WindowDurationAdjustmentDampFactor),
		goalDuration,
		p.WindowDurationAdjustmentClampFactor,
	)
	if windowAdj == 0 {
		windowAdj = 1
	}

	targetDifficulty = difficultyDeltaSum * uint64(p.BlockTimeSeconds) / windowAdj
	if targetDifficulty < p.MinimumDifficulty {
		targetDifficulty = p.MinimumDifficulty
	}
	return targetDifficulty, secondaryScaling
}
