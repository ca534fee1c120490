package tasks

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyKnownTasks(t *testing.T) {
	c, ok := Classify("isprime")
	require.True(t, ok)
	require.Equal(t, CPU, c)

	c, ok = Classify("sortfile")
	require.True(t, ok)
	require.Equal(t, IO, c)

	_, ok = Classify("bogus")
	require.False(t, ok)
}

func TestLookupUnknownTaskErrorMessage(t *testing.T) {
	_, err := Lookup("bogus")
	require.EqualError(t, err, "Unknown task 'bogus'")
}

func TestIsPrimeMillerRabin(t *testing.T) {
	out, err := isPrime(map[string]string{"n": "97", "method": "miller-rabin"})
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Equal(t, true, parsed["is_prime"])
}

func TestIsPrimeDivisionComposite(t *testing.T) {
	out, err := isPrime(map[string]string{"n": "100", "method": "division"})
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Equal(t, false, parsed["is_prime"])
}

func TestIsPrimeFallsBackToConfiguredDefaultMethod(t *testing.T) {
	orig := defaultPrimeMethod
	t.Cleanup(func() { defaultPrimeMethod = orig })

	SetDefaultPrimeMethod("TRIAL")
	out, err := isPrime(map[string]string{"n": "97"})
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Equal(t, "division", parsed["method"])

	SetDefaultPrimeMethod("MILLER_RABIN")
	out, err = isPrime(map[string]string{"n": "97"})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Equal(t, "miller-rabin", parsed["method"])
}

func TestFactorOfSmallComposite(t *testing.T) {
	out, err := factor(map[string]string{"n": "12"})
	require.NoError(t, err)
	require.Contains(t, out, "factors")
}

func TestFibonacci(t *testing.T) {
	out, err := fibonacci(map[string]string{"num": "10"})
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Equal(t, "55", parsed["value"])
}

func TestReverseIsRuneSafe(t *testing.T) {
	out, err := reverse(map[string]string{"text": "añb"})
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Equal(t, "añb", parsed["original"])
	require.Equal(t, "bña", parsed["reversed"])
}

func TestToUpperMatchesPinnedWireFormat(t *testing.T) {
	out, err := toUpper(map[string]string{"text": "hello"})
	require.NoError(t, err)
	require.Equal(t, `{"original":"hello","upper":"HELLO"}`, out)
}

func TestPiDigitsResultBeginsWithDigitsThenAlgo(t *testing.T) {
	out, err := piDigits(map[string]string{"digits": "4000"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, `{"digits":4000,"algo":"chudnovsky"`))
}

func TestPiSpigotStartsWithThreePointOne(t *testing.T) {
	s := piSpigot(5)
	require.Equal(t, "3.14159"[:7], s[:7])
}

func TestCreateFileRejectsPathTraversal(t *testing.T) {
	_, err := createFile(map[string]string{"name": "../evil.txt", "content": "x"})
	require.Error(t, err)
}

func TestCreateAndDeleteFileRoundTrip(t *testing.T) {
	dataDir = t.TempDir()
	_, err := createFile(map[string]string{"name": "f.txt", "content": "hello"})
	require.NoError(t, err)

	out, err := wordCount(map[string]string{"name": "f.txt"})
	require.NoError(t, err)
	require.Contains(t, out, "\"words\":1")

	_, err = deleteFile(map[string]string{"name": "f.txt"})
	require.NoError(t, err)

	_, err = wordCount(map[string]string{"name": "f.txt"})
	require.Error(t, err)
}
