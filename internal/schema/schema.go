// Package schema holds the structured view of a legal contract that the parser
// stage extracts and the generator stage consumes.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PartyRole is the role a party plays in the agreement.
type PartyRole string

const (
	RoleBuyer           PartyRole = "buyer"
	RoleSeller          PartyRole = "seller"
	RoleLessor          PartyRole = "lessor"
	RoleLessee          PartyRole = "lessee"
	RoleEmployer        PartyRole = "employer"
	RoleEmployee        PartyRole = "employee"
	RoleLender          PartyRole = "lender"
	RoleBorrower        PartyRole = "borrower"
	RoleServiceProvider PartyRole = "service_provider"
	RoleClient          PartyRole = "client"
	RoleLicensor        PartyRole = "licensor"
	RoleLicensee        PartyRole = "licensee"
	RoleOther           PartyRole = "other"
)

var partyRoles = map[PartyRole]bool{
	RoleBuyer: true, RoleSeller: true, RoleLessor: true, RoleLessee: true,
	RoleEmployer: true, RoleEmployee: true, RoleLender: true, RoleBorrower: true,
	RoleServiceProvider: true, RoleClient: true, RoleLicensor: true, RoleLicensee: true,
	RoleOther: true,
}

// ContractType classifies the agreement.
type ContractType string

const (
	TypeSale        ContractType = "sale"
	TypeLease       ContractType = "lease"
	TypeEmployment  ContractType = "employment"
	TypeLoan        ContractType = "loan"
	TypeService     ContractType = "service"
	TypeLicense     ContractType = "license"
	TypeNDA         ContractType = "nda"
	TypePartnership ContractType = "partnership"
	TypeEscrow      ContractType = "escrow"
	TypeOther       ContractType = "other"
)

var contractTypes = map[ContractType]bool{
	TypeSale: true, TypeLease: true, TypeEmployment: true, TypeLoan: true,
	TypeService: true, TypeLicense: true, TypeNDA: true, TypePartnership: true,
	TypeEscrow: true, TypeOther: true,
}

// ContractParty is one signatory of the contract.
type ContractParty struct {
	Name    string    `json:"name"`
	Role    PartyRole `json:"role"`
	Address string    `json:"address,omitempty"`
}

// FinancialTerm is a payment, deposit, fee or penalty.
type FinancialTerm struct {
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	Payee       string  `json:"payee,omitempty"`
	Schedule    string  `json:"schedule,omitempty"`
}

// ContractDate is a named date or deadline.
type ContractDate struct {
	Description string `json:"description"`
	Date        string `json:"date,omitempty"`
	Duration    string `json:"duration,omitempty"`
}

// ContractObligation is a duty one party owes under the contract.
type ContractObligation struct {
	Party       string `json:"party"`
	Description string `json:"description"`
	Condition   string `json:"condition,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
}

// ContractAsset is anything of value transferred or held under the contract.
type ContractAsset struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Value       string `json:"value,omitempty"`
	Owner       string `json:"owner,omitempty"`
}

// UniversalContractSchema is the parser stage output.
type UniversalContractSchema struct {
	Title          string               `json:"title"`
	ContractType   ContractType         `json:"contract_type"`
	Summary        string               `json:"summary,omitempty"`
	Parties        []ContractParty      `json:"parties"`
	FinancialTerms []FinancialTerm      `json:"financial_terms,omitempty"`
	Dates          []ContractDate       `json:"dates,omitempty"`
	Obligations    []ContractObligation `json:"obligations,omitempty"`
	Assets         []ContractAsset      `json:"assets,omitempty"`
	Conditions     []string             `json:"conditions,omitempty"`
	GoverningLaw   string               `json:"governing_law,omitempty"`
}

// Parse decodes a parser stage reply into a schema and normalises enum fields.
// Unknown roles and contract types collapse to "other".
func Parse(raw []byte) (*UniversalContractSchema, error) {
	var s UniversalContractSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode contract schema: %w", err)
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *UniversalContractSchema) normalize() {
	s.ContractType = ContractType(strings.ToLower(strings.TrimSpace(string(s.ContractType))))
	if !contractTypes[s.ContractType] {
		s.ContractType = TypeOther
	}
	for i := range s.Parties {
		r := PartyRole(strings.ToLower(strings.TrimSpace(string(s.Parties[i].Role))))
		r = PartyRole(strings.ReplaceAll(string(r), " ", "_"))
		if !partyRoles[r] {
			r = RoleOther
		}
		s.Parties[i].Role = r
	}
}

// Validate checks the minimum a generator needs: a title and at least one
// named party. Financial amounts must not be negative.
func (s *UniversalContractSchema) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("contract schema: title is required")
	}
	if len(s.Parties) == 0 {
		return fmt.Errorf("contract schema: at least one party is required")
	}
	for i, p := range s.Parties {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("contract schema: party %d has no name", i)
		}
	}
	for i, ft := range s.FinancialTerms {
		if ft.Amount < 0 {
			return fmt.Errorf("contract schema: financial term %d has negative amount", i)
		}
	}
	for i, o := range s.Obligations {
		if strings.TrimSpace(o.Description) == "" {
			return fmt.Errorf("contract schema: obligation %d has no description", i)
		}
	}
	return nil
}

// JSON returns the indented encoding used when embedding the schema in prompts.
func (s *UniversalContractSchema) JSON() string {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
