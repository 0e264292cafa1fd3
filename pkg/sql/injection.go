package sql

import (
	"fmt"
	"regexp"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on an input value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	ParamName   string // Name of the input that failed the check
	ParamValue  any    // The value that was checked
}

// CheckParameterForInjection uses libinjection to detect SQL injection patterns
// in an input value. Only string values are checked.
//
//	result := CheckParameterForInjection("namespace", "bauplan'; DROP TABLE orders--")
//	// result.IsSQLi == true
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			ParamName:   paramName,
			ParamValue:  value,
		}
	}

	return nil
}

// Refs and namespaces are branch-like names: letters, digits, '_', '-', '.', '/'.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-/]{0,127}$`)

// ValidateName checks a ref, namespace or table name supplied by a requester
// before it is embedded (quoted) into any query.
func ValidateName(kind, value string) error {
	if !namePattern.MatchString(value) {
		return fmt.Errorf("invalid %s %q", kind, value)
	}
	if result := CheckParameterForInjection(kind, value); result != nil {
		return fmt.Errorf("invalid %s %q: injection pattern %s", kind, value, result.Fingerprint)
	}
	return nil
}
