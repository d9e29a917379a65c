package trigger

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"triggerpay/internal/model"
)

const (
	defaultToken     = "ETH"
	flightDateLayout = "2006-01-02"
)

// CreateRequest is the boundary shape of a trigger creation request.
type CreateRequest struct {
	Owner        string          `json:"owner"`
	Condition    json.RawMessage `json:"condition"`
	Payout       model.Payout    `json:"payout"`
	FundedAmount string          `json:"funded_amount,omitempty"`
}

// Validate checks the request and converts it into CreateParams. Every error
// wraps ErrInvalid.
func (r CreateRequest) Validate() (CreateParams, error) {
	owner := strings.TrimSpace(r.Owner)
	if owner == "" {
		return CreateParams{}, invalid("owner is required")
	}
	if len(r.Condition) == 0 || string(r.Condition) == "null" {
		return CreateParams{}, invalid("condition is required")
	}

	cond, err := model.UnmarshalCondition(r.Condition)
	if err != nil {
		return CreateParams{}, invalid(err.Error())
	}
	cond, err = validateCondition(cond)
	if err != nil {
		return CreateParams{}, err
	}

	payout, err := validatePayout(r.Payout)
	if err != nil {
		return CreateParams{}, err
	}

	funded := strings.TrimSpace(r.FundedAmount)
	if funded != "" && !isNumeric(funded) {
		return CreateParams{}, invalid("funded_amount must be a non-negative integer")
	}

	return CreateParams{
		Owner:        owner,
		Condition:    cond,
		Payout:       payout,
		FundedAmount: funded,
	}, nil
}

func validateCondition(cond model.Condition) (model.Condition, error) {
	switch c := cond.(type) {
	case model.FlightCancellation:
		c.FlightNumber = strings.ToUpper(strings.TrimSpace(c.FlightNumber))
		c.FlightDate = strings.TrimSpace(c.FlightDate)
		if c.FlightNumber == "" || c.FlightDate == "" {
			return nil, invalid("flight_number and flight_date are required")
		}
		if _, err := time.Parse(flightDateLayout, c.FlightDate); err != nil {
			return nil, invalid("flight_date must be YYYY-MM-DD")
		}
		return c, nil
	default:
		return nil, invalid(fmt.Sprintf("unsupported condition_type %q", cond.Kind()))
	}
}

func validatePayout(p model.Payout) (model.Payout, error) {
	if !p.Chain.Valid() {
		return model.Payout{}, invalid(fmt.Sprintf("unsupported chain %q", p.Chain))
	}
	if err := ValidateEVMAddress(p.Address); err != nil {
		return model.Payout{}, err
	}
	amount := strings.TrimSpace(p.Amount)
	if !isNumeric(amount) {
		return model.Payout{}, invalid("payout amount must be a non-negative integer in the smallest unit")
	}
	normalized := strings.TrimLeft(amount, "0")
	if normalized == "" {
		return model.Payout{}, invalid("payout amount must be greater than zero")
	}
	token := strings.TrimSpace(p.Token)
	if token == "" {
		token = defaultToken
	}
	return model.Payout{
		Amount:  normalized,
		Token:   token,
		Address: p.Address,
		Chain:   p.Chain,
	}, nil
}

// ValidateEVMAddress requires a 0x-prefixed, 40 hex character address.
func ValidateEVMAddress(address string) error {
	if !strings.HasPrefix(address, "0x") || len(address) != 42 || !common.IsHexAddress(address) {
		return invalid("payout address must be 0x followed by 40 hex characters")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, msg)
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
