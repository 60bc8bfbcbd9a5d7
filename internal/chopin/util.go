package chopin

import "io"

// readAllOrOversize reads r to completion, surfacing the distinctive error
// http.MaxBytesReader produces once its limit is exceeded so callers can
// map it to a 413 without caring about the underlying reader.
func readAllOrOversize(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
