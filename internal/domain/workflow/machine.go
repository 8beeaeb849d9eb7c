package workflow

import "context"

// StateMachine evaluates triggers from a fixed current state
type StateMachine interface {
	// Peek evaluates the trigger and returns the destination state
	Peek(ctx context.Context, trigger Trigger) (State, error)
}
