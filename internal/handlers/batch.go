package handlers

// batchSize returns the chunk size used to partition a run's
// instances into schedule_instances messages, per the table in
// spec §4.4.1.
func batchSize(n int) int {
	switch {
	case n <= 10:
		return 1
	case n <= 100:
		return 5
	case n <= 1000:
		return 10
	case n <= 10000:
		return 15
	default:
		return 20
	}
}

// partition splits ids into contiguous chunks of size batch (the
// final chunk may be shorter), preserving order.
func partition(ids []string, batch int) [][]string {
	if batch <= 0 {
		batch = 1
	}
	var chunks [][]string
	for i := 0; i < len(ids); i += batch {
		end := i + batch
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}
