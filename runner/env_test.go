package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEnvironment(t *testing.T) {
	env := NewEnvironment([]string{
		"PATH=/usr/bin",
		"EMPTY=",
		"WITH_EQUALS=a=b",
		"=C:=C:\\hacl",
		"malformed",
		"PATH=/bin",
	})

	v, ok := env.Get("PATH")
	assert.True(t, ok)
	assert.Equal(t, "/bin", v, "later entries win")

	v, ok = env.Get("EMPTY")
	assert.True(t, ok)
	assert.Empty(t, v)

	v, _ = env.Get("WITH_EQUALS")
	assert.Equal(t, "a=b", v)

	v, ok = env.Get("=C:")
	assert.True(t, ok)
	assert.Equal(t, "C:\\hacl", v)

	_, ok = env.Get("malformed")
	assert.False(t, ok)
	assert.Equal(t, 4, env.Len())
}

func TestForTestIsPure(t *testing.T) {
	shared := SharedEnvironment([]string{"HOME=/home/ci", profileEntry("stale")}, "/src/tests")

	a := shared.ForTest("chacha20_test")
	b := shared.ForTest("chacha20_test")
	assert.Equal(t, a.Environ(), b.Environ(), "same inputs give the same environment")

	v, _ := a.Get(ProfileEnvVar)
	assert.Equal(t, "chacha20_test.profraw", v)
	v, _ = a.Get(TestDirEnvVar)
	assert.Equal(t, "/src/tests", v)
	v, _ = a.Get("HOME")
	assert.Equal(t, "/home/ci", v)

	other := shared.ForTest("aes_gcm_test")
	v, _ = other.Get(ProfileEnvVar)
	assert.Equal(t, "aes_gcm_test.profraw", v)

	// Deriving never touches the shared environment.
	v, _ = shared.Get(ProfileEnvVar)
	assert.Equal(t, "stale.profraw", v)
	v, _ = a.Get(ProfileEnvVar)
	assert.Equal(t, "chacha20_test.profraw", v)
}

func TestEnviron(t *testing.T) {
	env := NewEnvironment([]string{"B=2", "A=1"}).With("C", "3")
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, env.Environ())

	var zero Environment
	assert.Empty(t, zero.Environ())
	assert.Equal(t, []string{"K=V"}, zero.With("K", "V").Environ())
}

func profileEntry(stem string) string {
	return ProfileEnvVar + "=" + ProfileFile(stem)
}
