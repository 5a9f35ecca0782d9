package similarity

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode"
)

var (
	reAPIKey = regexp.MustCompile(`(?im)^API-Key:[ \t]*(.*?)\r?$`)
	// "api_key": "..." and "key": "..." in JSON bodies
	reJSONKey = regexp.MustCompile(`"((?i:api_key|apikey|api-key|key))":\s{0,10}"[^"]{0,1000}"`)
)

// sanitizeForLogging escapes control characters to prevent log injection.
func sanitizeForLogging(input string) string {
	if input == "" {
		return ""
	}
	var result strings.Builder
	result.Grow(len(input))
	for _, r := range input {
		switch r {
		case '\n':
			result.WriteString("\\n")
		case '\r':
			result.WriteString("\\r")
		case '\t':
			result.WriteString("\\t")
		default:
			if unicode.IsControl(r) {
				result.WriteString(fmt.Sprintf("\\u%04x", r))
			} else {
				result.WriteRune(r)
			}
		}
	}
	return result.String()
}

func _sanitizeRequestDump(reqDump string) (result string) {
	const maxSize = 10 * 1024 * 1024
	if len(reqDump) > maxSize {
		return "***REQUEST_TOO_LARGE_FOR_SANITIZATION***"
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Warning: Panic in _sanitizeRequestDump: %v. Returning safe placeholder.", sanitizeForLogging(fmt.Sprintf("%v", r)))
			result = "***REQUEST_SANITIZATION_FAILED***"
		}
	}()
	result = reAPIKey.ReplaceAllStringFunc(reqDump, func(match string) string {
		parts := strings.SplitN(match, ":", 2)
		if len(parts) != 2 {
			return match
		}
		suffix := ""
		if strings.HasSuffix(parts[1], "\r") {
			suffix = "\r"
		}
		return APIKeyHeader + ": " + _sanitizeToken(strings.TrimSpace(parts[1])) + suffix
	})
	return result
}

// _sanitizeToken keeps at most the first and last four characters of token.
func _sanitizeToken(token string) string {
	tokenLen := len(token)
	switch {
	case tokenLen == 0:
		return ""
	case tokenLen <= 4:
		return string(token[0]) + strings.Repeat("*", tokenLen-1)
	case tokenLen <= 8:
		return token[:2] + "..." + token[tokenLen-2:]
	default:
		return token[:4] + "..." + token[tokenLen-4:]
	}
}

func _sanitizeResponseDump(respDump string) (result string) {
	const maxSize = 10 * 1024 * 1024
	if len(respDump) > maxSize {
		return "***RESPONSE_TOO_LARGE_FOR_SANITIZATION***"
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Warning: Panic in _sanitizeResponseDump: %v. Returning safe placeholder.", sanitizeForLogging(fmt.Sprintf("%v", r)))
			result = "***RESPONSE_SANITIZATION_FAILED***"
		}
	}()
	result = _sanitizeRequestDump(respDump)
	return reJSONKey.ReplaceAllString(result, `"$1": "***REDACTED***"`)
}
