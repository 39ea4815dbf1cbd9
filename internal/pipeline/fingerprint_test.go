package pipeline

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeFingerprintDeterministic(t *testing.T) {
	a := map[string]*float64{"RPM": fptr(1500), "COOLANT": fptr(88.5)}
	b := map[string]*float64{"COOLANT": fptr(88.5), "RPM": fptr(1500)}

	assert.Equal(t, ComputeFingerprint(a), ComputeFingerprint(b))
	assert.Len(t, ComputeFingerprint(a), 16)
}

func TestComputeFingerprintAbsorbsFloatNoise(t *testing.T) {
	// Sub-centesimal jitter must not change the fingerprint.
	a := map[string]*float64{"RPM": fptr(1500.001)}
	b := map[string]*float64{"RPM": fptr(1500.004)}
	assert.Equal(t, ComputeFingerprint(a), ComputeFingerprint(b))

	// A change at two decimal places must.
	c := map[string]*float64{"RPM": fptr(1500.01)}
	d := map[string]*float64{"RPM": fptr(1500.02)}
	assert.NotEqual(t, ComputeFingerprint(c), ComputeFingerprint(d))
}

func TestComputeFingerprintDistinguishesPayloads(t *testing.T) {
	a := map[string]*float64{"RPM": fptr(1500)}
	b := map[string]*float64{"RPM": fptr(1501)}
	c := map[string]*float64{"SPEED": fptr(1500)}
	assert.NotEqual(t, ComputeFingerprint(a), ComputeFingerprint(b))
	assert.NotEqual(t, ComputeFingerprint(a), ComputeFingerprint(c))
}

func TestComputeFingerprintHandlesNonFiniteValues(t *testing.T) {
	// JSON input can't carry these, but a library caller can. They must
	// still fingerprint, or dedup silently turns off for the payload.
	nan := map[string]*float64{"RPM": fptr(math.NaN())}
	posInf := map[string]*float64{"RPM": fptr(math.Inf(1))}
	negInf := map[string]*float64{"RPM": fptr(math.Inf(-1))}
	finite := map[string]*float64{"RPM": fptr(1500)}

	assert.Len(t, ComputeFingerprint(nan), 16)
	assert.Equal(t, ComputeFingerprint(nan), ComputeFingerprint(nan))
	assert.NotEqual(t, ComputeFingerprint(posInf), ComputeFingerprint(negInf))
	assert.NotEqual(t, ComputeFingerprint(nan), ComputeFingerprint(finite))
}

func TestComputeFingerprintIncludesNulls(t *testing.T) {
	withNull := map[string]*float64{"RPM": fptr(1500), "FUEL": nil}
	without := map[string]*float64{"RPM": fptr(1500)}
	assert.NotEqual(t, ComputeFingerprint(withNull), ComputeFingerprint(without))
}
