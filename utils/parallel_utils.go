package utils

// PartitionMap splits a 1D index space into ParallelDegree contiguous
// partitions with a maximum imbalance of one item.
type PartitionMap struct {
	MaxIndex       int
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketDimension(bn int) (kMax int) {
	if bn == -1 {
		kMax = pm.MaxIndex
		return
	}
	var (
		k1, k2 = pm.GetBucketRange(bn)
	)
	kMax = k2 - k1
	return
}

func (pm *PartitionMap) Split1D(threadNum int) (bucket [2]int) {
	var (
		Npart            = pm.MaxIndex / pm.ParallelDegree
		startAdd, endAdd int
		remainder        int
	)
	remainder = pm.MaxIndex % pm.ParallelDegree
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}

// Accumulators holds one partial deposition target per worker. Workers write
// only their own slice; MergeTo folds the partials in ascending worker order
// so that the reduction order is fixed and results are reproducible.
type Accumulators struct {
	Partials [][]float64
}

func NewAccumulators(ParallelDegree, size int) (ac *Accumulators) {
	ac = &Accumulators{
		Partials: make([][]float64, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		ac.Partials[n] = make([]float64, size)
	}
	return
}

func (ac *Accumulators) MergeTo(target []float64) {
	for n := 0; n < len(ac.Partials); n++ {
		for i, val := range ac.Partials[n] {
			target[i] += val
		}
	}
}
