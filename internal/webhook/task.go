package webhook

import "context"

// Task is one webhook delivery running in the background.
type Task struct {
	Recipient string

	done    chan struct{}
	outcome Outcome
}

func newTask(recipient string) *Task {
	return &Task{Recipient: recipient, done: make(chan struct{})}
}

func (t *Task) finish(o Outcome) {
	t.outcome = o
	close(t.done)
}

// Done is closed once delivery has finished, successfully or not.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
