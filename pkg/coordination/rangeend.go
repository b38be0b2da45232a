package coordination

// RangeEnd computes the etcd-style range end for a prefix query: prefix with its last byte
// incremented by one, carrying as needed. An all-0xff prefix (vanishingly unlikely for our
// "/nodes/"-and-"/sync_locks/"-shaped keys) maps to the empty string, which etcd treats as
// "no upper bound".
func RangeEnd(prefix string) string {
	end := []byte(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return string(end[:i+1])
		}
	}
	return ""
}
