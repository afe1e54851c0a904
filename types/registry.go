package types

// Algorithm groups the test files declared under one algorithm name.
type Algorithm struct {
	Name  string
	Tests []string
}

// TestRegistry is the algorithm to tests mapping in declaration order.
// It is immutable once loaded.
type TestRegistry struct {
	Algorithms []Algorithm
}

// Specs flattens the registry into test specs, algorithms first, then tests,
// both in declaration order.
func (r *TestRegistry) Specs() []TestSpec {
	if r == nil {
		return nil
	}
	var specs []TestSpec
	for _, alg := range r.Algorithms {
		for _, file := range alg.Tests {
			specs = append(specs, NewTestSpec(alg.Name, file))
		}
	}
	return specs
}

// Len returns the total number of tests in the registry.
func (r *TestRegistry) Len() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, alg := range r.Algorithms {
		n += len(alg.Tests)
	}
	return n
}
