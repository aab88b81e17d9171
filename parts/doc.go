// Package parts plans byte-range requests.
//
// A plan turns the sorted (offset, length) parts selected from one resource
// into blocks, each fetched with a single range request. Strategies trade
// bytes downloaded against the number of requests:
//
//	minimum-split        one block for everything
//	maximum-split        one block per part
//	optimal-split(d,r)   greedy merge while gap*d <= r
//	blocked(N)           align to N-byte boundaries
//	cluster(N)           merge closest neighbours until N blocks remain
//	auto                 blocked with a size derived from the part lengths
//
// Strategies compose with "|": "cluster(4)|blocked(1024)" aligns first and
// clusters the aligned blocks.
package parts
