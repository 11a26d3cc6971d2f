package sanitize

// Role-aware stripping of sensitive fields from outbound payloads. Payloads
// are decoded database-row shapes (maps and slices), expected acyclic; depth
// is bounded anyway.

const maxDepth = 32

// alwaysRemove fields never leave the gateway, whatever the caller's role.
var alwaysRemove = map[string]struct{}{
	"password_hash":      {},
	"key_hash":           {},
	"mpin_hash":          {},
	"secret":             {},
	"api_secret":         {},
	"stripe_customer_id": {},
}

// contactFields are visible to admins only.
var contactFields = map[string]struct{}{
	"email":   {},
	"phone":   {},
	"address": {},
}

// Sanitize returns payload with sensitive fields removed. Maps are copied,
// not mutated in place.
func Sanitize(payload interface{}, role string) interface{} {
	return walk(payload, role == "admin", 0)
}

func walk(value interface{}, admin bool, depth int) interface{} {
	if depth > maxDepth {
		// A subtree too deep to walk is a subtree that cannot be vetted;
		// drop it rather than pass it through unsanitized.
		return nil
	}

	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, child := range v {
			if _, ok := alwaysRemove[key]; ok {
				continue
			}
			if _, ok := contactFields[key]; ok && !admin {
				continue
			}
			out[key] = walk(child, admin, depth+1)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, child := range v {
			out[i] = walk(child, admin, depth+1)
		}
		return out
	default:
		return value
	}
}
