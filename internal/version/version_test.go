package version

import "testing"

func TestString(t *testing.T) {
	t.Parallel()

	want := "ragchat dev (commit: unknown, built: unknown)"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
