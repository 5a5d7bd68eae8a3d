package session

import "context"

// Committer receives the rendered report once a session finishes.
type Committer interface {
	Commit(context.Context, string) error
}

// CommitFunc adapts a function to the Committer interface.
type CommitFunc func(context.Context, string) error

func (f CommitFunc) Commit(ctx context.Context, report string) error {
	return f(ctx, report)
}
