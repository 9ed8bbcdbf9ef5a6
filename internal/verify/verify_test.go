package verify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvbuilds/strategia-connect/internal/models"
)

var testAllowlist = []models.AllowlistEntry{
	{Email: "demo@test.com", Phone: "+911234567890", Name: "Demo User"},
	{Email: "priya.sharma@iitm.ac.in", Phone: "+919876543210", Name: "Priya Sharma"},
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"+91 12345-67890", "+911234567890"},
		{"(0091) 98765 43210", "919876543210"},
		{"0001234", "1234"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.in))
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "demo@test.com", NormalizeEmail("  DEMO@Test.com "))
}

func TestApplyCountryCode(t *testing.T) {
	assert.Equal(t, "+911234567890", ApplyCountryCode("+91", "1234567890"))
	assert.Equal(t, "+441234", ApplyCountryCode("+91", "+441234"))
	assert.Equal(t, "1234", ApplyCountryCode("", "1234"))
}

func TestVerify(t *testing.T) {
	v := NewVerifier(testAllowlist, 0)
	ctx := context.Background()

	tests := []struct {
		name   string
		email  string
		phone  string
		status Status
		reason string
	}{
		{"match after normalization", "DEMO@test.com ", "1234567890", StatusVerified, ""},
		{"phone off by one digit", "demo@test.com", "1234567891", StatusFailed, ReasonPhoneMismatch},
		{"email unknown phone known", "someone@test.com", "1234567890", StatusFailed, ReasonEmailMismatch},
		{"neither known", "x@y.z", "5555555555", StatusFailed, ReasonNotListed},
		{"fields from different rows", "demo@test.com", "9876543210", StatusFailed, ReasonNotListed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := v.Verify(ctx, tt.email, ApplyCountryCode("+91", tt.phone))
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestVerify_ReturnsEntry(t *testing.T) {
	v := NewVerifier(testAllowlist, 0)
	res, err := v.Verify(context.Background(), "priya.sharma@iitm.ac.in", "+91 98765 43210")
	require.NoError(t, err)
	require.True(t, res.Verified())
	assert.Equal(t, "Priya Sharma", res.Entry.Name)
}

func TestVerify_DelayHonoursCancel(t *testing.T) {
	v := NewVerifier(testAllowlist, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := v.Verify(ctx, "demo@test.com", "+911234567890")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadRegistry_EventFile(t *testing.T) {
	reg, err := LoadRegistry("../../event.yaml")
	require.NoError(t, err)

	assert.Equal(t, "+91", reg.CountryCode)
	assert.Contains(t, reg.Interests, "AI/ML")
	assert.Len(t, reg.Goals, 8)
	assert.Len(t, reg.Events, 4)
	assert.NotEmpty(t, reg.Events["VentureX"].Q2)

	core := reg.CoreProfiles()
	require.NotEmpty(t, core)
	assert.True(t, core[0].IsCore())
	assert.Equal(t, "Event Head", core[0].Core.Role)

	// Organizers can sign in like registrants.
	res, err := reg.Verifier(0).Verify(context.Background(), "arun@strategia.com", "+919876500001")
	require.NoError(t, err)
	assert.True(t, res.Verified())
}

func TestParseRegistry_Invalid(t *testing.T) {
	_, err := ParseRegistry([]byte("registrants: []\n"))
	assert.Error(t, err)

	_, err = ParseRegistry([]byte(`
registrants:
  - {email: a@b.c, phone: "+911"}
coreTeam:
  - {id: c1, name: A}
  - {id: c1, name: B}
interests: [x]
goals: [y]
`))
	assert.ErrorContains(t, err, "duplicate id")
}

func TestLoadRegistry_Missing(t *testing.T) {
	_, err := LoadRegistry(os.TempDir() + "/does-not-exist.yaml")
	assert.Error(t, err)
}
