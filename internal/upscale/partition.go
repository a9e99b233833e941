package upscale

// Partition splits records into at most want contiguous batches whose sizes
// differ by at most one. The effective batch count is clamped to
// min(want, len(records)). It is a pure function of the record order and the
// worker count, so a retried run reproduces the same partitioning.
func Partition(records []*ImageRecord, want int) [][]*ImageRecord {
	n := len(records)
	if n == 0 || want < 1 {
		return nil
	}
	if want > n {
		want = n
	}

	base := n / want
	extra := n % want // The first extra batches take one more record.

	batches := make([][]*ImageRecord, 0, want)
	start := 0
	for i := 0; i < want; i++ {
		size := base
		if i < extra {
			size++
		}
		batches = append(batches, records[start:start+size])
		start += size
	}
	return batches
}

// BatchSizes returns the partition sizes without building the batches,
// for dry-run reporting.
func BatchSizes(imageCount, want int) []int {
	if imageCount == 0 || want < 1 {
		return nil
	}
	if want > imageCount {
		want = imageCount
	}
	sizes := make([]int, want)
	base := imageCount / want
	extra := imageCount % want
	for i := range sizes {
		sizes[i] = base
		if i < extra {
			sizes[i]++
		}
	}
	return sizes
}
