package inheritance

import (
	"sort"
	"strconv"
	"strings"

	"github.com/bcnelson/webscenario-manager/internal/domain"
)

// StepsEquivalent reports whether two step lists have the same structure:
// the same step numbers carrying the same names, in step number order.
// Field values are not compared.
func StepsEquivalent(candidate, existing []domain.Step) bool {
	return stepFingerprint(candidate) == stepFingerprint(existing)
}

func stepFingerprint(steps []domain.Step) string {
	sorted := make([]domain.Step, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].No < sorted[j].No })

	var b strings.Builder
	for _, step := range sorted {
		b.WriteString(strconv.Itoa(step.No))
		b.WriteString(step.Name)
	}
	return b.String()
}
