package masking

import "strings"

const maskToken = "****"

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
// Provider prefixes such as "cus_" stay readable.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	prefix, remainder := splitPrefix(trimmed)
	if len(remainder) <= 4 {
		return prefix + maskToken
	}

	return prefix + maskToken + remainder[len(remainder)-4:]
}

// MaskEmail keeps the first letter of the local part and the domain.
func MaskEmail(value string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(value), "@")
	if !ok || local == "" {
		return MaskSecret(value)
	}
	return local[:1] + maskToken + "@" + domain
}

// MaskFields returns a copy of input where the values under sensitive keys
// are masked, at any depth. Other values are copied unchanged.
func MaskFields(input map[string]any, sensitive ...string) map[string]any {
	if len(input) == 0 {
		return nil
	}

	keys := make(map[string]struct{}, len(sensitive))
	for _, key := range sensitive {
		keys[strings.ToLower(strings.TrimSpace(key))] = struct{}{}
	}

	return maskMap(input, keys)
}

func maskMap(input map[string]any, keys map[string]struct{}) map[string]any {
	masked := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if _, ok := keys[strings.ToLower(trimmedKey)]; ok {
			masked[trimmedKey] = maskValue(trimmedKey, value)
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			masked[trimmedKey] = maskMap(nested, keys)
			continue
		}
		masked[trimmedKey] = value
	}

	if len(masked) == 0 {
		return nil
	}
	return masked
}

func maskValue(key string, value any) any {
	switch cast := value.(type) {
	case string:
		if strings.Contains(strings.ToLower(key), "email") {
			return MaskEmail(cast)
		}
		return MaskSecret(cast)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(key, item))
		}
		return out
	default:
		return value
	}
}

func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
