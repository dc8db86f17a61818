package selector

// filterByCapacity applies spec.md §4.2's capacity-bias eligibility
// test to a partition's already enabled∧healthy entries:
//
//	eligible iff amount_msat ≤ (1 + bias) · capacity_msat
//
// for both restrictive (bias < 0) and permissive (bias ≥ 0) biases.
// When no entry satisfies the test, the filter relaxes back to the
// full input set so a request is never starved on capacity alone.
func filterByCapacity(entries []Entry, amountMsat int64, bias float64) []Entry {
	var eligible []Entry
	for _, e := range entries {
		threshold := (1 + bias) * float64(e.Inbound)
		if float64(amountMsat) <= threshold {
			eligible = append(eligible, e)
		}
	}
	if len(eligible) == 0 {
		return entries
	}
	return eligible
}
