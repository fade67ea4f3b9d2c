package img

import (
	"context"
	"fmt"
	"strings"
)

// Transcoder converts raw image bytes into WebP.
// The batch converter depends on this interface rather than on the codec.
type Transcoder interface {
	// ToWebP converts data at the given quality (0-100). Sources with
	// transparency are encoded lossless regardless of quality.
	ToWebP(ctx context.Context, data []byte, quality int) ([]byte, error)

	// Supports returns true if this transcoder can read the given filename
	Supports(filename string) bool

	// Name returns the transcoder name for logging
	Name() string
}

var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
}

// SupportedExtensions returns the input extensions, lower case with the dot.
func SupportedExtensions() []string {
	return []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".tif"}
}

// IsSupportedExtension reports whether filename ends in a supported image
// extension. Comparison is case-insensitive; only the final path element is
// considered.
func IsSupportedExtension(filename string) bool {
	_, ext := SplitExt(filename)
	return supportedExtensions[strings.ToLower(ext)]
}

// SplitExt splits p into root and extension, looking only at the final
// slash-separated element. Leading dots of that element never start an
// extension, so ".hidden" has none.
func SplitExt(p string) (root, ext string) {
	base := p[strings.LastIndex(p, "/")+1:]
	i := strings.LastIndex(base, ".")
	if i <= 0 || strings.Trim(base[:i], ".") == "" {
		return p, ""
	}
	cut := len(p) - len(base) + i
	return p[:cut], p[cut:]
}

// ForFile returns the transcoder able to read filename.
func ForFile(filename string) (Transcoder, error) {
	t := NewWebPTranscoder()
	if !t.Supports(filename) {
		return nil, fmt.Errorf("unsupported file type: %s (supported: %s)", filename, strings.Join(SupportedExtensions(), ", "))
	}
	return t, nil
}
