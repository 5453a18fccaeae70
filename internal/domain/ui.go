package domain

import "time"

// ToastKind classifies a user notification
type ToastKind string

const (
	ToastError   ToastKind = "error"
	ToastInfo    ToastKind = "info"
	ToastSuccess ToastKind = "success"
)

// Toast is an ephemeral notification that expires on its own
type Toast struct {
	ID        string    `json:"id"`
	Kind      ToastKind `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Theme is the console color scheme
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether t is a known theme
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Opposite returns the other theme
func (t Theme) Opposite() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}
