// Package mirror replicates token adjacency into a human-readable 26x26
// bigram JSON file tree (A/AA.json .. Z/ZZ.json). Replication is queued and
// best effort: store writes mark tokens dirty, a flush drains the queue.
// The mirror never sits on the core write path.
package mirror

import (
	"strings"
)

// FallbackLetter buckets tokens whose leading characters are not ASCII
// letters.
const FallbackLetter = 'Z'

// Bucket returns the folder letter and shard bigram for a normalized token,
// e.g. "water" -> ("W", "WA"). Non-alpha positions map to FallbackLetter.
func Bucket(token string) (folder, bigram string) {
	tok := strings.ToLower(token)
	pick := func(i int) byte {
		if i < len(tok) && tok[i] >= 'a' && tok[i] <= 'z' {
			return tok[i] - 'a' + 'A'
		}
		return FallbackLetter
	}
	first := pick(0)
	return string(first), string([]byte{first, pick(1)})
}
