package profile

// Record holds the opaque per-user health attributes consumed when building
// system instructions. Keys are free-form ("name", "age", "allergies", ...);
// the assistant works fine with none of them present.
type Record struct {
	UserID     string            `json:"userId"`
	Attributes map[string]string `json:"attributes"`
}

// Get returns the attribute value, or "" when absent.
func (r Record) Get(key string) string {
	if r.Attributes == nil {
		return ""
	}
	return r.Attributes[key]
}

// Empty reports whether the record carries no usable attributes.
func (r Record) Empty() bool {
	for _, v := range r.Attributes {
		if v != "" {
			return false
		}
	}
	return true
}
