package staff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSet(t *testing.T) {
	s, err := ParseSet([]string{"checkout", " Apply_Discount "})
	require.NoError(t, err)

	assert.True(t, s.Has(CapCheckout))
	assert.True(t, s.Has(CapApplyDiscount))
	assert.False(t, s.Has(CapCreditSale))
}

func TestParseSet_UnknownScope(t *testing.T) {
	_, err := ParseSet([]string{"checkout", "admin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin")
}

func TestMemberCan(t *testing.T) {
	m := &Member{ID: "s1", Capabilities: NewSet(CapCheckout, CapCancelSale)}
	assert.True(t, m.Can(CapCancelSale))
	assert.False(t, m.Can(CapCreditSale))

	var nobody *Member
	assert.False(t, nobody.Can(CapCheckout))
}

func TestCapabilityString(t *testing.T) {
	assert.Equal(t, "credit_sale", CapCreditSale.String())
	assert.Equal(t, "unknown", Capability(1<<20).String())
}
