package service

// Allocate splits total across lines in proportion to their fee snapshots.
// Integer remainders go to the last line so the parts always sum to total.
// When every fee is zero the split is even.
func Allocate(total int64, fees []int64) []int64 {
	n := len(fees)
	if n == 0 {
		return nil
	}
	out := make([]int64, n)
	var sum int64
	for _, f := range fees {
		sum += f
	}
	var allocated int64
	for i := range n - 1 {
		if sum == 0 {
			out[i] = total / int64(n)
		} else {
			out[i] = total * fees[i] / sum
		}
		allocated += out[i]
	}
	out[n-1] = total - allocated
	return out
}
