package session

import (
	"strings"
	"testing"
)

func TestPathsAreScopedToSession(t *testing.T) {
	name := "testsess"
	for _, p := range []string{Dir(name), LockPath(name), SessionConfigPath(name), LogPath(name)} {
		if !strings.Contains(p, name) {
			t.Errorf("path %q does not contain session name", p)
		}
		if !strings.Contains(p, ".parley") {
			t.Errorf("path %q is outside the base dir", p)
		}
	}
}

func TestResolvePrecedence(t *testing.T) {
	if got := Resolve("override"); got != "override" {
		t.Errorf("Resolve with flag = %q, want override", got)
	}
}
