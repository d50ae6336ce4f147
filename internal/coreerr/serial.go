package coreerr

import "fmt"

// toString renders an arbitrary argument the way the teacher's common/serial
// package renders error-message fragments, without pulling in that package
// (not present in the retrieval pack).
func toString(v interface{}) string {
	return fmt.Sprintf("%v", v)
}
