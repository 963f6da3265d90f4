package firewall

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// canaryPrefix makes generated tokens identifiable even out of context.
const canaryPrefix = "CANARY"

// GenerateCanary returns a new session-unique canary token.
func GenerateCanary() string {
	return fmt.Sprintf("%s-%s", canaryPrefix, uuid.New().String())
}

// InjectCanary wraps prompt with a canary marker that should never
// appear verbatim in a legitimate model response.
func InjectCanary(prompt, canary string) string {
	return fmt.Sprintf("[SYSTEM_CANARY:%s]\n%s", canary, prompt)
}

// DetectLeak reports whether canary appears verbatim in output.
func DetectLeak(output, canary string) bool {
	return strings.Contains(output, canary)
}

// DetectCanaryPattern reports whether output contains a canary-shaped
// fragment even if the exact token doesn't match — catching partial
// leaks or ham-fisted obfuscation attempts.
func DetectCanaryPattern(output string) bool {
	return strings.Contains(output, canaryPrefix) || strings.Contains(output, "SYSTEM_CANARY")
}
