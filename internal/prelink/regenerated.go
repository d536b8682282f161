package prelink

import "strings"

// Holder classes regenerated by the runtime at startup. Two copies can
// legitimately exist (one per archive layer), so these names are exempt
// from duplicate-record and identity-mismatch errors.
var regeneratedPrefixes = []string{
	"java/lang/invoke/Invokers$Holder",
	"java/lang/invoke/DirectMethodHandle$Holder",
	"java/lang/invoke/DelegatingMethodHandle$Holder",
	"java/lang/invoke/LambdaForm$Holder",
}

// MayBeRegeneratedClass reports whether the internal class name belongs to
// the fixed set of runtime-regenerated holder classes.
func MayBeRegeneratedClass(name string) bool {
	for _, p := range regeneratedPrefixes {
		if name == p || strings.HasPrefix(name, p+"$") {
			return true
		}
	}
	return false
}
