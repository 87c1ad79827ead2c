package stackvm

// Config carries the four recognized runtime options from spec.md §6.
// There is no textual config file or env-var binding in the core itself —
// cmd/stackvm-demo binds these to flag.Uint/flag.Bool the way gvm/main.go
// binds -debug.
type Config struct {
	// InitStackSizeInBytes sizes the stack's initial backing buffer.
	InitStackSizeInBytes uint32
	// StackFrameEnsureFreeSizeInBytes is the minimum free headroom
	// EnsureFreeSpace maintains.
	StackFrameEnsureFreeSizeInBytes uint32
	// StackFrameIncrementSizeInBytes is the growth step once headroom
	// falls below the guard above.
	StackFrameIncrementSizeInBytes uint32
	// EnableBoundsCheck gates the operand-underflow bounds check in
	// Stack.checkOperandBounds. Disabling it trades safety for the cost
	// of the check on the hot path, matching spec.md §6.
	EnableBoundsCheck bool
}

const (
	defaultInitStackSize      = 64 * 1024
	defaultFrameEnsureFree    = 32 * 1024
	defaultFrameIncrement     = 64 * 1024
)

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		InitStackSizeInBytes:            defaultInitStackSize,
		StackFrameEnsureFreeSizeInBytes: defaultFrameEnsureFree,
		StackFrameIncrementSizeInBytes:  defaultFrameIncrement,
		EnableBoundsCheck:               true,
	}
}
