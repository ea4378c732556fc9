package common

import (
	"fmt"
	"hash/fnv"
)

// SubjectFingerprint returns a short stable hash of a subject id for log
// correlation. Raw subject ids never go into log lines.
func SubjectFingerprint(subject string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(subject))
	return fmt.Sprintf("%016x", h.Sum64())
}
