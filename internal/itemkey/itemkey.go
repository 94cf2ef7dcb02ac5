// Package itemkey builds the keys of the check items generated for web
// scenarios and their steps.
package itemkey

import (
	"strings"

	"github.com/bcnelson/webscenario-manager/internal/domain"
)

// Quote quotes an item key parameter when it would otherwise be ambiguous:
// it starts with a double quote or contains a comma or closing bracket.
func Quote(param string) string {
	if param == "" || (!strings.HasPrefix(param, `"`) && !strings.ContainsAny(param, ",]")) {
		return param
	}
	return `"` + strings.ReplaceAll(param, `"`, `\"`) + `"`
}

// ScenarioKey returns the key of a scenario-level item of the given kind.
// It returns "" for kinds that only exist on steps.
func ScenarioKey(kind domain.ItemKind, scenarioName string) string {
	switch kind {
	case domain.ItemDownloadRate:
		return "web.test.in[" + Quote(scenarioName) + ",,bps]"
	case domain.ItemFailedStep:
		return "web.test.fail[" + Quote(scenarioName) + "]"
	case domain.ItemLastError:
		return "web.test.error[" + Quote(scenarioName) + "]"
	}
	return ""
}

// StepKey returns the key of a step-level item of the given kind.
// It returns "" for kinds that only exist on scenarios.
func StepKey(kind domain.ItemKind, scenarioName, stepName string) string {
	scenario, step := Quote(scenarioName), Quote(stepName)
	switch kind {
	case domain.ItemDownloadRate:
		return "web.test.in[" + scenario + "," + step + ",bps]"
	case domain.ItemResponseTime:
		return "web.test.time[" + scenario + "," + step + ",resp]"
	case domain.ItemResponseCode:
		return "web.test.rspcode[" + scenario + "," + step + "]"
	}
	return ""
}
