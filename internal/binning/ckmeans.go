package binning

// ckmeans partitions an ascending slice into k contiguous groups
// minimizing within-group sum of squared deviations (optimal univariate
// k-means, the exact form of Jenks natural breaks). Returns nil when
// there are fewer than k distinct values.
func ckmeans(sorted []float64, k int) [][]float64 {
	n := len(sorted)
	if n == 0 || k < 2 {
		return nil
	}
	distinct := 1
	for i := 1; i < n; i++ {
		if sorted[i] != sorted[i-1] {
			distinct++
		}
	}
	if distinct < k {
		return nil
	}

	// cost[i][j]: minimal within-cluster SSQ for the first i+1 values in
	// j+1 clusters. back[i][j]: start index of the last cluster.
	cost := make([][]float64, n)
	back := make([][]int, n)
	for i := range cost {
		cost[i] = make([]float64, k)
		back[i] = make([]int, k)
	}

	// Prefix sums for O(1) segment SSQ.
	prefix := make([]float64, n+1)
	prefixSq := make([]float64, n+1)
	for i, v := range sorted {
		prefix[i+1] = prefix[i] + v
		prefixSq[i+1] = prefixSq[i] + v*v
	}
	ssq := func(lo, hi int) float64 { // inclusive bounds
		cnt := float64(hi - lo + 1)
		sum := prefix[hi+1] - prefix[lo]
		sumSq := prefixSq[hi+1] - prefixSq[lo]
		s := sumSq - sum*sum/cnt
		if s < 0 { // numeric noise
			return 0
		}
		return s
	}

	for i := 0; i < n; i++ {
		cost[i][0] = ssq(0, i)
		back[i][0] = 0
	}
	for j := 1; j < k; j++ {
		for i := j; i < n; i++ {
			best := -1.0
			bestStart := j
			for start := j; start <= i; start++ {
				c := cost[start-1][j-1] + ssq(start, i)
				if best < 0 || c < best {
					best = c
					bestStart = start
				}
			}
			cost[i][j] = best
			back[i][j] = bestStart
		}
	}

	// Walk the backtrack table into groups.
	groups := make([][]float64, k)
	end := n - 1
	for j := k - 1; j >= 0; j-- {
		start := back[end][j]
		groups[j] = append([]float64(nil), sorted[start:end+1]...)
		end = start - 1
	}
	return groups
}
