package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/soundvault/wavegen/internal/errors"
)

// HashFile returns the hex-encoded sha256 content hash of the file. The
// hash identifies the audio content: a re-uploaded identical file hashes
// the same and reuses its artifact.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.New(err).
			Component("artifact").
			Category(errors.CategoryFileIO).
			Context("operation", "hash_file").
			Context("path", path).
			Build()
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.New(err).
			Component("artifact").
			Category(errors.CategoryFileIO).
			Context("operation", "hash_file").
			Context("path", path).
			Build()
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
