package retrieval

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Signature computes the content signature of a document set: the sorted
// concatenation of "path:mtime:size" for every document, hashed. Any edit,
// addition, or removal of a source file changes the signature and forces a
// chunk cache rebuild for the scope.
func Signature(docs []Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, fmt.Sprintf("%s:%d:%d", d.Path(), d.ModTime().Unix(), d.Size()))
	}
	sort.Strings(parts)

	sum := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return fmt.Sprintf("%x", sum)
}
