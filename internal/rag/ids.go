package rag

import (
	"strconv"

	"github.com/google/uuid"
)

// namespace scopes every generated identifier so IDs from this tool never
// collide with UUIDv5 values derived from the same names elsewhere.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/54b3r/cvgen-go"))

// DocumentID returns a deterministic UUIDv5 for a source file page. Re-loading
// the same file yields the same IDs, so rebuilt indexes stay comparable.
func DocumentID(sourcePath string, page int) string {
	return uuid.NewSHA1(namespace, []byte(sourcePath+"#"+strconv.Itoa(page))).String()
}

// ChunkID returns a deterministic UUIDv5 for a chunk of a document. The UUID
// form is also what Qdrant requires for point IDs.
func ChunkID(documentID string, startOffset int) string {
	return uuid.NewSHA1(namespace, []byte(documentID+"#"+strconv.Itoa(startOffset))).String()
}
