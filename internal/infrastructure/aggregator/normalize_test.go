package aggregator

import (
	"encoding/json"
	"testing"
)

// The payloads below are trimmed copies of real provider responses observed
// across API versions; the alias handling exists because all of these shapes
// occur in production.

func TestAuthorizationRef(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantOK  bool
	}{
		{
			name:    "modern shape with id",
			payload: `{"id": "auth-123", "disabled": false, "brokerage": {"name": "Questrade"}}`,
			want:    "auth-123",
			wantOK:  true,
		},
		{
			name:    "camelCase authorizationId",
			payload: `{"authorizationId": "auth-456", "name": "Robinhood"}`,
			want:    "auth-456",
			wantOK:  true,
		},
		{
			name:    "brokerage_authorization as string",
			payload: `{"brokerage_authorization": "auth-789"}`,
			want:    "auth-789",
			wantOK:  true,
		},
		{
			name:    "brokerage_authorization as object",
			payload: `{"brokerage_authorization": {"id": "auth-abc", "disabled": true}}`,
			want:    "auth-abc",
			wantOK:  true,
		},
		{
			name:    "id wins over other aliases",
			payload: `{"id": "auth-first", "authorizationId": "auth-second"}`,
			want:    "auth-first",
			wantOK:  true,
		},
		{
			name:    "no resolvable id",
			payload: `{"name": "Mystery Broker", "disabled": false}`,
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var auth Authorization
			if err := json.Unmarshal([]byte(tt.payload), &auth); err != nil {
				t.Fatalf("failed to unmarshal payload: %v", err)
			}

			got, ok := AuthorizationRef(auth)
			if ok != tt.wantOK {
				t.Fatalf("AuthorizationRef() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("AuthorizationRef() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAccountAuthorizationRef(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantOK  bool
	}{
		{
			name:    "authorizationId field",
			payload: `{"id": "acct-1", "authorizationId": "auth-1"}`,
			want:    "auth-1",
			wantOK:  true,
		},
		{
			name:    "brokerage_authorization string",
			payload: `{"id": "acct-2", "brokerage_authorization": "auth-2"}`,
			want:    "auth-2",
			wantOK:  true,
		},
		{
			name:    "account id is not an authorization id",
			payload: `{"id": "acct-3"}`,
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var acc Account
			if err := json.Unmarshal([]byte(tt.payload), &acc); err != nil {
				t.Fatalf("failed to unmarshal payload: %v", err)
			}

			got, ok := AccountAuthorizationRef(acc)
			if ok != tt.wantOK {
				t.Fatalf("AccountAuthorizationRef() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("AccountAuthorizationRef() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInstitutionOf(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{
			name:    "explicit institution_name",
			payload: `{"id": "a", "institution_name": "Fidelity", "brokerage": {"name": "Other"}}`,
			want:    "Fidelity",
		},
		{
			name:    "nested brokerage name",
			payload: `{"id": "a", "brokerage": {"name": "Questrade", "slug": "QUESTRADE"}}`,
			want:    "Questrade",
		},
		{
			name:    "falls back to display name",
			payload: `{"id": "a", "name": "My Connection"}`,
			want:    "My Connection",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var auth Authorization
			if err := json.Unmarshal([]byte(tt.payload), &auth); err != nil {
				t.Fatalf("failed to unmarshal payload: %v", err)
			}
			if got := InstitutionOf(auth); got != tt.want {
				t.Errorf("InstitutionOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAccountAccessors(t *testing.T) {
	payload := `{
		"id": "acct-1",
		"name": "default",
		"institution_name": "Robinhood",
		"balance": {
			"total": {"amount": 15000.50, "currency": "USD"},
			"cash": {"amount": 2500.25, "currency": "USD"}
		}
	}`

	var acc Account
	if err := json.Unmarshal([]byte(payload), &acc); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}

	if got := acc.TotalValue(); got != 15000.50 {
		t.Errorf("TotalValue() = %v, want 15000.50", got)
	}
	if got := acc.CashValue(); got != 2500.25 {
		t.Errorf("CashValue() = %v, want 2500.25", got)
	}
	if got := acc.BuyingPowerValue(); got != 2500.25 {
		t.Errorf("BuyingPowerValue() should fall back to cash, got %v", got)
	}
	if got := acc.CurrencyCode(); got != "USD" {
		t.Errorf("CurrencyCode() = %q, want USD", got)
	}
}

func TestAccountAccessors_MissingBalance(t *testing.T) {
	var acc Account
	if err := json.Unmarshal([]byte(`{"id": "acct-1"}`), &acc); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}

	if got := acc.TotalValue(); got != 0 {
		t.Errorf("TotalValue() = %v, want 0", got)
	}
	if got := acc.CurrencyCode(); got != "USD" {
		t.Errorf("CurrencyCode() = %q, want USD default", got)
	}
}

func TestPositionSymbolCode(t *testing.T) {
	payload := `{
		"symbol": {"symbol": {"symbol": "AAPL", "description": "Apple Inc"}, "raw_symbol": "AAPL.Q"},
		"units": 10,
		"price": 180.5,
		"average_purchase_price": 150.0
	}`

	var pos Position
	if err := json.Unmarshal([]byte(payload), &pos); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}

	if got := pos.SymbolCode(); got != "AAPL" {
		t.Errorf("SymbolCode() = %q, want AAPL", got)
	}

	var raw Position
	if err := json.Unmarshal([]byte(`{"symbol": {"raw_symbol": "BTC"}}`), &raw); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	if got := raw.SymbolCode(); got != "BTC" {
		t.Errorf("SymbolCode() raw fallback = %q, want BTC", got)
	}
}
