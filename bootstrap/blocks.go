//Package bootstrap estimates the statistical error of WHAM-derived
//observables by block bootstrapping: the concatenated trajectory is cut
//into blocks, resampled with replacement block by block, and the whole
//WHAM/observable pipeline is re-run on each resampled copy. The spread of
//the resulting estimates is the error bar. Frames inside a block stay
//together because they are temporally correlated; only whole blocks are
//drawn.
package bootstrap

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

//Blocks is a bias matrix and its parallel observable series partitioned
//into ntraj trajectories of nblocks blocks each. It is the read-only input
//shared by all bootstrap cycles.
type Blocks struct {
	bias     *mat.Dense //rows: ntraj consecutive stretches of trajLen frames
	obs      []float64
	ntraj    int
	nblocks  int
	blockLen int
}

//Partition cuts the trailing ntraj*trajLen rows of bias (and entries of
//obs) into ntraj trajectories of nblocks blocks each. trajLen is the
//declared usable length of each trajectory; trajLen <= 0 derives it as
//rows/ntraj. Either way it is rounded down to whole blocks, and the
//leading remainder is discarded; the discarded count is available through
//Ignored. bias and obs are kept by reference and must not be modified
//afterwards.
func Partition(bias *mat.Dense, obs []float64, ntraj, trajLen, nblocks int) (*Blocks, error) {
	rows, _ := bias.Dims()
	if len(obs) != rows {
		return nil, fmt.Errorf("bootstrap.Partition: %d observable values for %d bias rows", len(obs), rows)
	}
	if ntraj < 1 || nblocks < 1 {
		return nil, fmt.Errorf("bootstrap.Partition: need at least 1 trajectory and 1 block, got %d and %d", ntraj, nblocks)
	}
	if trajLen <= 0 {
		trajLen = rows / ntraj
	} else if ntraj*trajLen > rows {
		return nil, fmt.Errorf("bootstrap.Partition: declared traj length %d needs %d rows but only %d were given", trajLen, ntraj*trajLen, rows)
	}
	blockLen := trajLen / nblocks
	if blockLen < 1 {
		return nil, fmt.Errorf("bootstrap.Partition: %d rows cannot fill %d trajectories of %d blocks", rows, ntraj, nblocks)
	}
	trajLen = blockLen * nblocks //whole blocks only
	used := ntraj * trajLen
	start := rows - used //unequal prefix is discarded, as the newest data wins
	return &Blocks{
		bias:     bias.Slice(start, rows, 0, biasCols(bias)).(*mat.Dense),
		obs:      obs[start:],
		ntraj:    ntraj,
		nblocks:  nblocks,
		blockLen: blockLen,
	}, nil
}

func biasCols(m *mat.Dense) int {
	_, c := m.Dims()
	return c
}

//Ignored returns how many leading frames were discarded to make the data
//divide evenly into trajectories and blocks.
func (b *Blocks) Ignored(totalRows int) int {
	return totalRows - b.ntraj*b.nblocks*b.blockLen
}

//NBlocks returns the number of blocks per trajectory.
func (b *Blocks) NBlocks() int { return b.nblocks }

//Frames returns the number of usable frames (rows) across all trajectories.
func (b *Blocks) Frames() int { return b.ntraj * b.nblocks * b.blockLen }

//Original returns the partitioned (truncated) bias matrix and observable
//series without resampling, for the reference, non-bootstrapped estimate.
//The returned matrix aliases the input of Partition and is read-only.
func (b *Blocks) Original() (*mat.Dense, []float64) {
	return b.bias, b.obs
}

//Draw returns nblocks block indices drawn uniformly with replacement.
func (b *Blocks) Draw(rnd *rand.Rand) []int {
	c := make([]int, b.nblocks)
	for i := range c {
		c[i] = rnd.Intn(b.nblocks)
	}
	return c
}

//Resample assembles a fresh bias matrix and observable series in which
//block j of every trajectory is replaced by block choice[j] of that same
//trajectory. Applying one draw across all trajectories keeps the
//trajectories aligned frame by frame, which the WHAM bias matrix requires.
//Frame order inside each block is preserved.
func (b *Blocks) Resample(choice []int) (*mat.Dense, []float64, error) {
	if len(choice) != b.nblocks {
		return nil, nil, fmt.Errorf("bootstrap.Resample: %d block choices, want %d", len(choice), b.nblocks)
	}
	for _, c := range choice {
		if c < 0 || c >= b.nblocks {
			return nil, nil, fmt.Errorf("bootstrap.Resample: block index %d out of range [0,%d)", c, b.nblocks)
		}
	}
	rows := b.Frames()
	ncols := biasCols(b.bias)
	trajLen := b.nblocks * b.blockLen
	rbias := mat.NewDense(rows, ncols, nil)
	robs := make([]float64, rows)
	for traj := 0; traj < b.ntraj; traj++ {
		for j, c := range choice {
			src := traj*trajLen + c*b.blockLen
			dst := traj*trajLen + j*b.blockLen
			for k := 0; k < b.blockLen; k++ {
				rbias.SetRow(dst+k, b.bias.RawRowView(src+k))
				robs[dst+k] = b.obs[src+k]
			}
		}
	}
	return rbias, robs, nil
}
