package types

import "strings"

// ProfileRow is one input row of a run. Rows are immutable and identified by
// their Index within the source list.
type ProfileRow struct {
	Index      int
	ProfileURL string
	Email      string
	FirstName  string
	LastName   string
	Company    string
}

// DisplayName returns a human readable label for logs.
func (r ProfileRow) DisplayName() string {
	name := strings.TrimSpace(r.FirstName + " " + r.LastName)
	if name == "" {
		return r.ProfileURL
	}
	return name
}
