package dispatch

import "mailwave/pkg/models"

// Outcome is the result of delivering to one recipient.
type Outcome struct {
	Email      string
	TrackingID string
	Err        error
}

type RecipientError struct {
	Email string `json:"email"`
	Error string `json:"error"`
}

func newResult() *Result {
	return &Result{Errors: []RecipientError{}}
}

type Result struct {
	Total  int              `json:"total"`
	Sent   int              `json:"sent"`
	Failed int              `json:"failed"`
	Errors []RecipientError `json:"errors"`
}

func (r *Result) Add(o Outcome) {
	r.Total++
	if o.Err == nil {
		r.Sent++
		return
	}
	r.Failed++
	r.Errors = append(r.Errors, RecipientError{Email: o.Email, Error: o.Err.Error()})
}

// Stats converts the result to campaign stat increments. Failed sends count
// as bounces.
func (r *Result) Stats() map[string]int64 {
	inc := make(map[string]int64, 2)
	if r.Sent > 0 {
		inc[models.StatSent] = int64(r.Sent)
	}
	if r.Failed > 0 {
		inc[models.StatBounces] = int64(r.Failed)
	}
	return inc
}
