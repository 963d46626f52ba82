package masking

import "strings"

const maskToken = "****"

// SensitiveKeys are metadata keys whose values never reach the audit table in
// clear text.
var SensitiveKeys = []string{"signature", "gateway_payment_id", "payment_id", "key_secret"}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
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

// MaskKeys returns a copy of input where string values under the listed keys
// are masked, at any depth. Other values are copied as is.
func MaskKeys(input map[string]any, keys ...string) map[string]any {
	if len(input) == 0 {
		return nil
	}
	sensitive := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		sensitive[strings.ToLower(strings.TrimSpace(key))] = struct{}{}
	}
	return maskMap(input, sensitive)
}

func maskMap(input map[string]any, sensitive map[string]struct{}) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if _, ok := sensitive[strings.ToLower(trimmedKey)]; ok {
			if str, isString := value.(string); isString {
				out[trimmedKey] = MaskSecret(str)
				continue
			}
		}
		switch cast := value.(type) {
		case map[string]any:
			out[trimmedKey] = maskMap(cast, sensitive)
		default:
			out[trimmedKey] = value
		}
	}
	return out
}

// splitPrefix keeps gateway prefixes such as "pay_" readable.
func splitPrefix(value string) (string, string) {
	lastUnderscore := strings.LastIndex(value, "_")
	if lastUnderscore == -1 || lastUnderscore == len(value)-1 {
		return "", value
	}
	return value[:lastUnderscore+1], value[lastUnderscore+1:]
}
