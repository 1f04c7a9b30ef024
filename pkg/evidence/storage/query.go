package storage

import (
	"fmt"
	"strings"

	"mercator-hq/honeywire/pkg/evidence"
)

// DefaultLimit caps Query results when the query sets no limit.
const DefaultLimit = 100

// sortOrder returns "ASC" or "DESC" for query, or a QueryError.
func sortOrder(query *evidence.Query) (string, error) {
	switch strings.ToLower(query.SortOrder) {
	case "", "desc":
		return "DESC", nil
	case "asc":
		return "ASC", nil
	default:
		return "", evidence.NewQueryError(query, fmt.Errorf("invalid sort order %q", query.SortOrder))
	}
}

// matches reports whether event passes the query filters. Pagination and
// ordering are applied by the caller.
func matches(event *evidence.Event, query *evidence.Query) bool {
	if query.StartTime != nil && event.Time.Before(*query.StartTime) {
		return false
	}
	if query.EndTime != nil && event.Time.After(*query.EndTime) {
		return false
	}
	if query.Kind != "" && event.Kind != query.Kind {
		return false
	}
	if query.Honeywire != "" && event.Honeywire != query.Honeywire {
		return false
	}
	if query.Process != "" && event.Process != query.Process {
		return false
	}
	if query.PID != 0 && event.PID != query.PID {
		return false
	}
	return true
}
