package audit

import "strings"

// inferenceRules map path fragments to actions for routes that did not
// declare one at registration. Ordered, first match wins; declared actions
// always take precedence over this fallback.
var inferenceRules = []struct {
	fragment string
	method   string // empty matches any method
	action   Action
}{
	{"/login", "POST", ActionLogin},
	{"/logout", "", ActionLogout},
	{"/register", "POST", ActionRegister},
	{"/password", "", ActionPasswordChange},
	{"/checkout", "POST", ActionOrderCreate},
	{"/orders", "POST", ActionOrderCreate},
	{"/payments", "POST", ActionPaymentSuccess},
	{"/admin", "", ActionAdminAction},
}

// InferAction falls back to the lowercase HTTP method when no rule matches,
// so every request still gets a classifiable action.
func InferAction(path, method string) Action {
	for _, rule := range inferenceRules {
		if !strings.Contains(path, rule.fragment) {
			continue
		}
		if rule.method != "" && rule.method != method {
			continue
		}
		return rule.action
	}
	return Action(strings.ToLower(method))
}
