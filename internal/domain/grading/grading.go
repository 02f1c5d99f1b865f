// Package grading judges a finished performance from its counters.
package grading

// Outcome describes how a performance reached its terminal status.
type Outcome struct {
	// Completed is true when the schedule ran to natural completion,
	// false for a stop command or a driver fault.
	Completed  bool
	TotalNotes int
	ErrorNotes int
}

// Result is the judgment attached to the terminal status event and
// the history summary. Accuracy is only meaningful when Graded is
// true.
type Result struct {
	Success  bool
	Graded   bool
	Accuracy float64
}

// Policy turns an outcome into a success judgment. The engine treats
// the policy as opaque so deployments can swap in their own grading.
type Policy interface {
	Grade(o Outcome) Result
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(o Outcome) Result

// Grade calls f.
func (f PolicyFunc) Grade(o Outcome) Result { return f(o) }

// DefaultPolicy succeeds iff the schedule completed naturally with no
// error notes. Accuracy is the fraction of notes delivered on time.
func DefaultPolicy() Policy {
	return PolicyFunc(func(o Outcome) Result {
		r := Result{
			Success: o.Completed && o.ErrorNotes == 0,
		}
		if o.Completed && o.TotalNotes > 0 {
			r.Graded = true
			r.Accuracy = 1 - float64(o.ErrorNotes)/float64(o.TotalNotes)
			if r.Accuracy < 0 {
				r.Accuracy = 0
			}
		}
		return r
	})
}
