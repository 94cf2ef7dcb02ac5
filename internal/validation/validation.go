// Package validation provides validation functions for hosts and web scenarios.
// Time and status code formats follow the Zabbix frontend rules for web
// scenario fields.
package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bcnelson/webscenario-manager/internal/domain"
)

// Limits on web scenario values.
const (
	MaxNameLength   = 64
	MaxHostLength   = 128
	MaxRetries      = 10
	MaxDelaySeconds = 86400
	MaxTimeout      = 3600
)

// isAlpha returns true if the byte is an ASCII letter.
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isNum returns true if the byte is an ASCII digit.
func isNum(b byte) bool {
	return b >= '0' && b <= '9'
}

// isAlphaNum returns true if the byte is an ASCII letter or digit.
func isAlphaNum(b byte) bool {
	return isAlpha(b) || isNum(b)
}

// isUserMacro reports whether s is a user macro such as {$DELAY}.
func isUserMacro(s string) bool {
	inner, ok := strings.CutPrefix(s, "{$")
	if !ok {
		return false
	}
	inner, ok = strings.CutSuffix(inner, "}")
	if !ok || inner == "" {
		return false
	}
	for _, b := range []byte(inner) {
		if !isAlphaNum(b) && b != '_' && b != '.' {
			return false
		}
	}
	return true
}

// ValidateHostName validates a host or template name.
// Names may contain letters, numbers, spaces, dots, dashes and underscores,
// and must not start or end with a space.
func ValidateHostName(name string) error {
	if name == "" {
		return fmt.Errorf("host name must not be empty")
	}
	if len(name) > MaxHostLength {
		return fmt.Errorf("host name must not be longer than %d characters", MaxHostLength)
	}
	if name[0] == ' ' || name[len(name)-1] == ' ' {
		return fmt.Errorf("host name must not start or end with a space")
	}
	for _, b := range []byte(name) {
		if !isAlphaNum(b) && b != ' ' && b != '.' && b != '-' && b != '_' {
			return fmt.Errorf("host names can only contain letters, numbers, spaces, dots, dashes, or underscores")
		}
	}
	return nil
}

// ParseTimeSuffix converts a Zabbix time value (30, 30s, 5m, 2h, 1d, 1w)
// to seconds.
func ParseTimeSuffix(value string) (int, error) {
	if value == "" {
		return 0, fmt.Errorf("must not be empty")
	}
	multiplier := 1
	digits := value
	switch value[len(value)-1] {
	case 's':
		digits = value[:len(value)-1]
	case 'm':
		multiplier, digits = 60, value[:len(value)-1]
	case 'h':
		multiplier, digits = 3600, value[:len(value)-1]
	case 'd':
		multiplier, digits = 86400, value[:len(value)-1]
	case 'w':
		multiplier, digits = 604800, value[:len(value)-1]
	}
	if digits == "" {
		return 0, fmt.Errorf("must start with a number")
	}
	for _, b := range []byte(digits) {
		if !isNum(b) {
			return 0, fmt.Errorf("must be a number with an optional s, m, h, d or w suffix")
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("value out of range")
	}
	return n * multiplier, nil
}

// ValidateDelay validates a scenario update interval.
func ValidateDelay(delay string) error {
	if isUserMacro(delay) {
		return nil
	}
	seconds, err := ParseTimeSuffix(delay)
	if err != nil {
		return err
	}
	if seconds < 1 || seconds > MaxDelaySeconds {
		return fmt.Errorf("must be between 1 second and 1 day")
	}
	return nil
}

// ValidateTimeout validates a step timeout.
func ValidateTimeout(timeout string) error {
	if isUserMacro(timeout) {
		return nil
	}
	seconds, err := ParseTimeSuffix(timeout)
	if err != nil {
		return err
	}
	if seconds < 1 || seconds > MaxTimeout {
		return fmt.Errorf("must be between 1 second and 1 hour")
	}
	return nil
}

// ValidateStatusCodes validates a comma separated list of HTTP status codes
// and ranges, such as "200,301-302". Empty means any code.
func ValidateStatusCodes(codes string) error {
	if codes == "" {
		return nil
	}
	for _, part := range strings.Split(codes, ",") {
		part = strings.TrimSpace(part)
		if isUserMacro(part) {
			continue
		}
		from, to, isRange := strings.Cut(part, "-")
		if !isStatusCode(from) || (isRange && !isStatusCode(to)) {
			return fmt.Errorf("invalid status code %q", part)
		}
		if isRange {
			lo, _ := strconv.Atoi(from)
			hi, _ := strconv.Atoi(to)
			if lo > hi {
				return fmt.Errorf("invalid status code range %q", part)
			}
		}
	}
	return nil
}

func isStatusCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, b := range []byte(s) {
		if !isNum(b) {
			return false
		}
	}
	return s[0] >= '1' && s[0] <= '5'
}

// ValidateScenario checks a complete scenario and returns every problem found
// as ValidationErrors, or nil.
func ValidateScenario(sc *domain.Scenario) error {
	var errs ValidationErrors

	switch {
	case strings.TrimSpace(sc.Name) == "":
		errs.Add("name", sc.Name, "must not be empty")
	case len(sc.Name) > MaxNameLength:
		errs.Add("name", sc.Name, fmt.Sprintf("must not be longer than %d characters", MaxNameLength))
	}
	if sc.Delay != "" {
		if err := ValidateDelay(sc.Delay); err != nil {
			errs.Add("delay", sc.Delay, err.Error())
		}
	}
	if sc.Status != domain.ScenarioActive && sc.Status != domain.ScenarioDisabled {
		errs.Add("status", strconv.Itoa(sc.Status), "must be 0 (active) or 1 (disabled)")
	}
	if sc.Retries < 0 || sc.Retries > MaxRetries {
		errs.Add("retries", strconv.Itoa(sc.Retries), fmt.Sprintf("must be between 1 and %d", MaxRetries))
	}
	validateFields(&errs, "headers", sc.Headers)
	validateFields(&errs, "variables", sc.Variables)

	if len(sc.Steps) == 0 {
		errs.Add("steps", "", "at least one step is required")
	}
	names := make(map[string]bool, len(sc.Steps))
	numbers := make(map[int]bool, len(sc.Steps))
	for i := range sc.Steps {
		validateStep(&errs, Path("steps").Index(i), &sc.Steps[i], names, numbers)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateStep(errs *ValidationErrors, path Path, step *domain.Step, names map[string]bool, numbers map[int]bool) {
	switch {
	case strings.TrimSpace(step.Name) == "":
		errs.Add(path.Child("name"), step.Name, "must not be empty")
	case len(step.Name) > MaxNameLength:
		errs.Add(path.Child("name"), step.Name, fmt.Sprintf("must not be longer than %d characters", MaxNameLength))
	case names[step.Name]:
		errs.Add(path.Child("name"), step.Name, "step names must be unique within a scenario")
	}
	names[step.Name] = true

	if step.No < 1 {
		errs.Add(path.Child("no"), strconv.Itoa(step.No), "must be a positive number")
	} else if numbers[step.No] {
		errs.Add(path.Child("no"), strconv.Itoa(step.No), "step numbers must be unique within a scenario")
	}
	numbers[step.No] = true

	if strings.TrimSpace(step.URL) == "" {
		errs.Add(path.Child("url"), step.URL, "must not be empty")
	}
	if step.Timeout != "" {
		if err := ValidateTimeout(step.Timeout); err != nil {
			errs.Add(path.Child("timeout"), step.Timeout, err.Error())
		}
	}
	if err := ValidateStatusCodes(step.StatusCodes); err != nil {
		errs.Add(path.Child("status_codes"), step.StatusCodes, err.Error())
	}
	if step.PostType != domain.PostTypeRaw && step.PostType != domain.PostTypeForm {
		errs.Add(path.Child("post_type"), strconv.Itoa(step.PostType), "must be 0 (raw) or 1 (form)")
	}
	validateFields(errs, path.Child("headers"), step.Headers)
	validateFields(errs, path.Child("variables"), step.Variables)
	validateFields(errs, path.Child("query_fields"), step.QueryFields)
	validateFields(errs, path.Child("post_fields"), step.PostFields)
}

func validateFields(errs *ValidationErrors, path Path, fields []domain.Field) {
	for i, field := range fields {
		if strings.TrimSpace(field.Name) == "" {
			errs.Add(path.Index(i).Child("name"), field.Name, "must not be empty")
		}
	}
}
