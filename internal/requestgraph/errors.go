package requestgraph

import "fmt"

// CycleError reports that runRequest detected req.ID as its own ancestor in
// the current call chain (spec §9 "Dedup and cycles").
type CycleError struct {
	ID    string
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("requestgraph: cycle detected: %s already running in chain %v", e.ID, e.Chain)
}
