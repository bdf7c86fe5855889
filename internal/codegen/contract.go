package codegen

import "fmt"

// Invariant violations indicate a bug in an upstream compiler stage, not a
// user-facing error, so they fail fast instead of attempting recovery.

const failMsg = "internal backend invariant violated"

// Failf unconditionally abandons generation with a formatted message.
func Failf(format string, args ...interface{}) {
	panic(fmt.Sprintf("%s: %s", failMsg, fmt.Sprintf(format, args...)))
}

// Assertf checks an invariant and Failfs when it does not hold.
func Assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		Failf(format, args...)
	}
}
