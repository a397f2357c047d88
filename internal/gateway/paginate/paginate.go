// Package paginate solves the page-size oracle needed to translate an IMAP
// sequence range into a single upstream page request.
package paginate

// Page finds the smallest page size n such that some page p >= 1 satisfies
//
//	n*(p-1) + 1 <= min  and  max <= n*p
//
// and returns (page, pageSize). min and max are 1-indexed message numbers
// with 1 <= min <= max.
//
// A page of size max always contains every message from 1 to max, so it is
// always a valid (if wasteful) answer; the search only needs to check sizes
// from max-min+1 (the smallest size that could possibly hold the range) up
// to max-1 before falling back to it: at most min-1 candidates, giving O(min)
// time.
func Page(min, max uint32) (page, pageSize uint32) {
	for size := max - min + 1; size < max; size++ {
		p := (max-1)/size + 1
		if size*(p-1)+1 <= min && max <= size*p {
			return p, size
		}
	}
	return 1, max
}
