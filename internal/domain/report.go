package domain

// QueryResult holds the matches for one query, best match first.
type QueryResult struct {
	Query   string
	Matches []Match
}

// Report maps each query to its result while keeping the order in which
// queries were added.
type Report struct {
	results []QueryResult
	index   map[string]int
}

// NewReport returns an empty report with room for n queries.
func NewReport(n int) *Report {
	return &Report{
		results: make([]QueryResult, 0, n),
		index:   make(map[string]int, n),
	}
}

// Add appends a result. A result for a query already present replaces the
// earlier one in place.
func (r *Report) Add(res QueryResult) {
	if i, ok := r.index[res.Query]; ok {
		r.results[i] = res
		return
	}
	r.index[res.Query] = len(r.results)
	r.results = append(r.results, res)
}

// Len returns the number of queries in the report.
func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	return len(r.results)
}

// Queries returns the queries in insertion order.
func (r *Report) Queries() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.results))
	for i, res := range r.results {
		out[i] = res.Query
	}
	return out
}

// Get looks up the result for a query.
func (r *Report) Get(query string) (QueryResult, bool) {
	if r == nil {
		return QueryResult{}, false
	}
	i, ok := r.index[query]
	if !ok {
		return QueryResult{}, false
	}
	return r.results[i], true
}

// Results returns a copy of all results in insertion order.
func (r *Report) Results() []QueryResult {
	if r == nil {
		return nil
	}
	out := make([]QueryResult, len(r.results))
	copy(out, r.results)
	return out
}
