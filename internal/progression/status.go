// Package progression computes a student's stage in the deliverable
// chain from persisted facts.
package progression

// Status is a student's position in the progression chain. Statuses are
// totally ordered; the walk in Machine.ComputeStatus only ascends.
type Status string

const (
	StatusD0Pre      Status = "D0PRE"
	StatusD0         Status = "D0"
	StatusD1Unlocked Status = "D1UNLOCKED"
	StatusD1TeamSet  Status = "D1TEAMSET"
	StatusD1         Status = "D1"
	StatusD2         Status = "D2"
	StatusD3Pre      Status = "D3PRE"
	StatusD3         Status = "D3"
)

var statusOrder = map[Status]int{
	StatusD0Pre:      0,
	StatusD0:         1,
	StatusD1Unlocked: 2,
	StatusD1TeamSet:  3,
	StatusD1:         4,
	StatusD2:         5,
	StatusD3Pre:      6,
	StatusD3:         7,
}

// Rank returns the total-order position of the status, or -1 for
// unrecognized strings.
func Rank(s Status) int {
	if r, ok := statusOrder[s]; ok {
		return r
	}
	return -1
}

// Max returns the higher of two statuses. Unrecognized strings rank
// below everything.
func Max(a, b Status) Status {
	if Rank(b) > Rank(a) {
		return b
	}
	return a
}
