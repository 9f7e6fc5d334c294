package analysis

import "context"

// ToastLevel is the severity of a user notification
type ToastLevel string

const (
	ToastSuccess ToastLevel = "success"
	ToastError   ToastLevel = "error"
	ToastInfo    ToastLevel = "info"
)

// Toast is a short user-facing notification
type Toast struct {
	Level   ToastLevel `json:"level"`
	Kind    Kind       `json:"kind,omitempty"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier receives toasts. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, toast Toast)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, toast Toast)

// Notify implements Notifier
func (f NotifierFunc) Notify(ctx context.Context, toast Toast) {
	f(ctx, toast)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Toast) {}
