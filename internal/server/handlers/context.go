package handlers

import (
	"context"
	"net/http"
)

type contextKey int

const subjectKey contextKey = iota

func withSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// subjectFromContext returns the verified token subject stored by the access
// token middleware; empty when the request skipped it.
func subjectFromContext(r *http.Request) string {
	subject, _ := r.Context().Value(subjectKey).(string)
	return subject
}
