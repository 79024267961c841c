package checkout

import (
	"github.com/xenking/counter-checkout/internal/domain/customer"
	"github.com/xenking/counter-checkout/internal/domain/staff"
)

// Session is the state owned by one register for one in-progress sale.
// Nothing here is shared between registers.
type Session struct {
	RegisterID string
	Operator   *staff.Member
	// ScanningMode is set while the operator is adding items with a barcode
	// scanner; the UI keeps the SKU field focused.
	ScanningMode bool
	// Remote marks phone or messaging orders that are not rung up in person.
	Remote    bool
	Customer  *customer.Customer
	Cart      Cart
	Buyer     BuyerDetails
	Quotation string

	// buyerValidated is set once Buyer passed the full buyer form check and
	// cleared whenever Buyer or the segment it was checked against changes.
	buyerValidated bool
}

func (s *Session) saleType() SaleType {
	if s.Remote {
		return SaleRemote
	}
	return SaleCounter
}

func (s *Session) customerID() string {
	if s.Customer == nil {
		return ""
	}
	return s.Customer.ID
}

func (s *Session) operatorID() string {
	if s.Operator == nil {
		return ""
	}
	return s.Operator.ID
}

// allows reports whether the operator holds c. Sessions without an
// operator are unrestricted.
func (s *Session) allows(c staff.Capability) bool {
	return s.Operator == nil || s.Operator.Can(c)
}
