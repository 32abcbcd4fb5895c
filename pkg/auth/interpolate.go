package auth

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	configurationKeyPattern = regexp.MustCompile(`\$\{configuration\.([^}]+)\}`)
	placeholderPattern      = regexp.MustCompile(`\$\{([^{}]*)\}`)
)

// ExtractConfigurationKeys returns the configuration keys referenced by
// ${configuration.KEY} placeholders in a URL template, in order of appearance.
func ExtractConfigurationKeys(template string) []string {
	matches := configurationKeyPattern.FindAllStringSubmatch(template, -1)
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, m[1])
	}
	return keys
}

// InterpolateString substitutes ${KEY} placeholders from the replacers map.
// Placeholders without a replacement are left intact so callers can detect
// them afterwards.
func InterpolateString(template string, replacers map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := replacers[key]; ok {
			return value
		}
		return match
	})
}

// MissesInterpolationParam reports whether the template still contains an
// unresolved placeholder after substituting from configuration.
func MissesInterpolationParam(template string, configuration map[string]string) bool {
	stripped := strings.ReplaceAll(template, "configuration.", "")
	return placeholderPattern.MatchString(InterpolateString(stripped, configuration))
}

// InterpolateURL resolves a ${configuration.KEY} URL template in two phases:
// the configuration prefix is stripped so the template's origin and path are
// addressable, then values are substituted and the result parsed as a URL.
func InterpolateURL(template string, configuration map[string]string) (*url.URL, error) {
	stripped := strings.ReplaceAll(template, "configuration.", "")
	resolved := InterpolateString(stripped, configuration)
	if placeholderPattern.MatchString(resolved) {
		return nil, fmt.Errorf("%w: unresolved placeholders in %q", ErrMissingConfiguration, template)
	}

	parsed, err := url.Parse(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to parse interpolated url %q: %w", resolved, err)
	}
	return parsed, nil
}

// stringConfiguration narrows a handshake configuration map to its string
// values, which are the only values URL templates can reference.
func stringConfiguration(configuration map[string]any) map[string]string {
	out := make(map[string]string, len(configuration))
	for key, value := range configuration {
		if s, ok := value.(string); ok {
			out[key] = s
		}
	}
	return out
}
