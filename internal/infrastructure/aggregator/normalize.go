package aggregator

import "encoding/json"

// The provider's payloads are not stable: the authorization id shows up as
// "id" on authorization objects, as "authorizationId" on some account
// payloads, and as "brokerage_authorization" (either a bare string or an
// embedded object) on others. Everything here resolves those aliases in one
// place so domain code never touches raw payload shapes.

// Authorization is one institution connection under an identity.
type Authorization struct {
	ID                     string          `json:"id"`
	AuthorizationID        string          `json:"authorizationId"`
	BrokerageAuthorization json.RawMessage `json:"brokerage_authorization"`
	Disabled               bool            `json:"disabled"`
	Name                   string          `json:"name"`
	InstitutionName        string          `json:"institution_name"`
	Brokerage              *Brokerage      `json:"brokerage"`
	CreatedDate            string          `json:"created_date"`
	UpdatedDate            string          `json:"updated_date"`
}

type Brokerage struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Account is one brokerage account under an authorization.
type Account struct {
	ID                     string          `json:"id"`
	AuthorizationID        string          `json:"authorizationId"`
	BrokerageAuthorization json.RawMessage `json:"brokerage_authorization"`
	Name                   string          `json:"name"`
	Number                 string          `json:"number"`
	InstitutionName        string          `json:"institution_name"`
	RawType                string          `json:"raw_type"`
	Balance                *AccountBalance `json:"balance"`
	Meta                   map[string]any  `json:"meta"`
}

type AccountBalance struct {
	Total       *Money `json:"total"`
	Cash        *Money `json:"cash"`
	BuyingPower *Money `json:"buying_power"`
}

type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Position is one holding inside an account.
type Position struct {
	Symbol               PositionSymbol `json:"symbol"`
	Units                float64        `json:"units"`
	Price                float64        `json:"price"`
	AveragePurchasePrice float64        `json:"average_purchase_price"`
}

type PositionSymbol struct {
	Symbol struct {
		Symbol      string `json:"symbol"`
		Description string `json:"description"`
	} `json:"symbol"`
	RawSymbol string `json:"raw_symbol"`
}

// SymbolCode returns the ticker, preferring the normalized symbol over the
// broker's raw one.
func (p *Position) SymbolCode() string {
	if p.Symbol.Symbol.Symbol != "" {
		return p.Symbol.Symbol.Symbol
	}
	return p.Symbol.RawSymbol
}

// Activity is one trade, dividend or transfer record.
type Activity struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	TradeDate   string  `json:"trade_date"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
}

// AuthorizationRef resolves the stable authorization id of an authorization
// payload, trying known aliases in order. Returns false when none resolve;
// callers must skip such records rather than invent an id.
func AuthorizationRef(a Authorization) (string, bool) {
	if a.ID != "" {
		return a.ID, true
	}
	if a.AuthorizationID != "" {
		return a.AuthorizationID, true
	}
	if id := decodeAuthRef(a.BrokerageAuthorization); id != "" {
		return id, true
	}
	return "", false
}

// AccountAuthorizationRef resolves the authorization id an account belongs
// to, with the same alias order as AuthorizationRef.
func AccountAuthorizationRef(a Account) (string, bool) {
	if a.AuthorizationID != "" {
		return a.AuthorizationID, true
	}
	if id := decodeAuthRef(a.BrokerageAuthorization); id != "" {
		return id, true
	}
	return "", false
}

// decodeAuthRef handles the brokerage_authorization field, which is either
// a bare id string or an object carrying one.
func decodeAuthRef(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}

	return ""
}

// InstitutionOf returns the display institution name of an authorization,
// falling back through the shapes different payload versions use.
func InstitutionOf(a Authorization) string {
	if a.InstitutionName != "" {
		return a.InstitutionName
	}
	if a.Brokerage != nil && a.Brokerage.Name != "" {
		return a.Brokerage.Name
	}
	return a.Name
}

// AccountInstitution returns the institution name of an account payload.
func AccountInstitution(a Account) string {
	if a.InstitutionName != "" {
		return a.InstitutionName
	}
	if v, ok := a.Meta["institution_name"].(string); ok {
		return v
	}
	return ""
}

// TotalValue returns the account's total market value.
func (a *Account) TotalValue() float64 {
	if a.Balance == nil || a.Balance.Total == nil {
		return 0
	}
	return a.Balance.Total.Amount
}

// CashValue returns the account's cash component.
func (a *Account) CashValue() float64 {
	if a.Balance == nil || a.Balance.Cash == nil {
		return 0
	}
	return a.Balance.Cash.Amount
}

// BuyingPowerValue returns the account's buying power, falling back to cash
// when the provider omits it.
func (a *Account) BuyingPowerValue() float64 {
	if a.Balance != nil && a.Balance.BuyingPower != nil {
		return a.Balance.BuyingPower.Amount
	}
	return a.CashValue()
}

// Currency returns the account currency, defaulting to USD when missing.
func (a *Account) CurrencyCode() string {
	if a.Balance != nil && a.Balance.Total != nil && a.Balance.Total.Currency != "" {
		return a.Balance.Total.Currency
	}
	return "USD"
}
