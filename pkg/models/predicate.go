package models

// Condition is one key/expected-value pair of a workflow selection predicate.
type Condition struct {
	Key   string `json:"key"   validate:"required"`
	Value string `json:"value" validate:"required"`
}

// Predicate selects a workflow template for a new request. A predicate
// matches when every condition is satisfied by exact equality against the
// submitted attributes. An empty predicate matches any submission of the
// workflow's type.
type Predicate []Condition

func (p Predicate) Matches(attributes map[string]string) bool {
	for _, cond := range p {
		if attributes[cond.Key] != cond.Value {
			return false
		}
	}

	return true
}
