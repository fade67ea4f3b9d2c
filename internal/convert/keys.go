package convert

import (
	"strings"

	"github.com/tendant/simple-webp/internal/img"
)

// DestinationKey maps a source key to its WebP key. With a destination
// prefix the result is "{prefix}/{basename without extension}.webp", so the
// source directory structure is flattened. Without one the extension of the
// full key is replaced in place.
func DestinationKey(sourceKey, destPrefix string) string {
	if destPrefix != "" {
		base := sourceKey[strings.LastIndex(sourceKey, "/")+1:]
		root, _ := img.SplitExt(base)
		return destPrefix + "/" + root + ".webp"
	}
	root, _ := img.SplitExt(sourceKey)
	return root + ".webp"
}
