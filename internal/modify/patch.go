package modify

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LooksLikePatch reports whether model output is a patch rather than a
// full file body.
func LooksLikePatch(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, "@@") ||
		(strings.Contains(t, "\n@@") && (strings.HasPrefix(t, "---") || strings.HasPrefix(t, "+++")))
}

// ApplyPatch applies a hunk-format patch to the original content.
// File header lines ("--- a/x", "+++ b/x") are stripped before
// parsing. Fails when any hunk cannot be placed.
func ApplyPatch(original, patchText string) (string, error) {
	var kept []string
	for _, line := range strings.Split(strings.TrimSpace(patchText), "\n") {
		if strings.HasPrefix(line, "--- ") || strings.HasPrefix(line, "+++ ") {
			continue
		}
		kept = append(kept, line)
	}

	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(strings.Join(kept, "\n"))
	if err != nil {
		return "", fmt.Errorf("failed to parse patch: %w", err)
	}
	if len(patches) == 0 {
		return "", fmt.Errorf("patch contains no hunks")
	}

	result, applied := dmp.PatchApply(patches, original)
	for i, ok := range applied {
		if !ok {
			return "", fmt.Errorf("hunk %d did not apply", i+1)
		}
	}
	return result, nil
}
