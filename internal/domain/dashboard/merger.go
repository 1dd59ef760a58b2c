package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"flint/internal/domain/account"
	"flint/internal/domain/identity"
	"flint/internal/infrastructure/aggregator"
	"flint/internal/infrastructure/bankapi"
)

// AggregatorClient is the slice of the aggregator API the merger needs.
type AggregatorClient interface {
	ListAccounts(ctx context.Context, providerUserID, providerSecret string) ([]aggregator.Account, error)
	GetPositions(ctx context.Context, providerUserID, providerSecret, accountID string) ([]aggregator.Position, error)
}

// Merger builds the unified dashboard view. Bank and brokerage sides are
// independent failure domains fetched concurrently; one provider being down
// never hides the other's data.
type Merger struct {
	accounts   account.Repository
	bank       bankapi.ClientInterface
	identities identity.Repository
	brokerage  AggregatorClient
	holdings   HoldingRepository // optional
	now        func() time.Time
}

func NewMerger(
	accounts account.Repository,
	bank bankapi.ClientInterface,
	identities identity.Repository,
	brokerage AggregatorClient,
	holdings HoldingRepository,
) *Merger {
	return &Merger{
		accounts:   accounts,
		bank:       bank,
		identities: identities,
		brokerage:  brokerage,
		holdings:   holdings,
		now:        time.Now,
	}
}

// BuildView assembles the dashboard for a user. It never fails hard: on
// total failure it returns an empty, renderable view whose connection
// status explains what went wrong.
func (m *Merger) BuildView(ctx context.Context, userID int64) *View {
	var (
		wg        sync.WaitGroup
		bankAccs  []ConnectedAccount
		brokAccs  []ConnectedAccount
		bankClass string
		brokClass string
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		bankAccs, bankClass = m.bankSide(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		brokAccs, brokClass = m.brokerageSide(ctx, userID)
	}()
	wg.Wait()

	view := &View{
		Accounts: make([]ConnectedAccount, 0, len(bankAccs)+len(brokAccs)),
		ConnectionStatus: ConnectionStatus{
			BankError:      bankClass,
			BrokerageError: brokClass,
		},
		AsOf: m.now(),
	}
	view.Accounts = append(view.Accounts, bankAccs...)
	view.Accounts = append(view.Accounts, brokAccs...)

	computeTotals(view)

	failed := func(class string) bool { return class != "" && class != ErrClassNotConnected }
	if len(view.Accounts) == 0 && (failed(bankClass) || failed(brokClass)) {
		view.ConnectionStatus.Message = "We could not load your accounts right now. Your data is safe; please try again shortly."
	}

	return view
}

// bankSide returns one unified account per linked bank account, in linking
// order. An expired grant falls back to the cached balance and flags the
// account for reconnection instead of dropping it.
func (m *Merger) bankSide(ctx context.Context, userID int64) ([]ConnectedAccount, string) {
	accs, err := m.accounts.ListByUserID(ctx, userID)
	if err != nil {
		log.Printf("User %d: Failed to list bank accounts: %v", userID, err)
		return nil, ErrClassFetchFailed
	}

	var out []ConnectedAccount
	errClass := ""
	now := m.now()

	for _, acc := range accs {
		raw, needsReconnection, fetchErr := m.liveOrCachedBalance(ctx, acc, now)
		if fetchErr != nil {
			errClass = ErrClassFetchFailed
		}

		ca := ConnectedAccount{
			ID:                acc.ID,
			Provider:          "bank",
			DisplayName:       acc.Name,
			InstitutionName:   acc.InstitutionName,
			Currency:          currencyOrDefault(acc.Currency),
			NeedsReconnection: needsReconnection,
			LastUpdated:       now,
		}

		if acc.IsCredit() {
			// The provider reports what is owed as a positive number.
			// Debt contributes negatively to net worth but is displayed
			// as a positive amount owed.
			owed := raw
			ca.AccountType = "credit"
			ca.BalanceAmount = -owed
			ca.AmountOwed = &owed
		} else {
			ca.AccountType = "bank"
			ca.BalanceAmount = raw
		}

		out = append(out, ca)
	}

	return out, errClass
}

// liveOrCachedBalance fetches the live balance and writes it back as the
// cache for the next fallback. On an expired grant the cached value is
// served and the account flagged; on any other failure the cached value is
// served and the error reported to the caller.
func (m *Merger) liveOrCachedBalance(ctx context.Context, acc *account.BankAccount, now time.Time) (float64, bool, error) {
	bal, err := m.bank.GetBalances(ctx, acc.AccessToken, acc.ProviderAccountID)
	if err != nil {
		if errors.Is(err, bankapi.ErrExpiredGrant) {
			log.Printf("User %d: Bank grant expired for account %s, serving cached balance", acc.UserID, acc.ID)
			return acc.LastBalance, true, nil
		}
		log.Printf("User %d: Balance fetch failed for account %s, serving cached: %v", acc.UserID, acc.ID, err)
		return acc.LastBalance, false, err
	}

	raw, err := pickBalance(bal, acc.IsCredit())
	if err != nil {
		log.Printf("User %d: Unparseable balance for account %s, serving cached: %v", acc.UserID, acc.ID, err)
		return acc.LastBalance, false, err
	}

	if err := m.accounts.UpdateCachedBalance(ctx, acc.ID, raw, now); err != nil {
		log.Printf("User %d: Failed to cache balance for account %s: %v", acc.UserID, acc.ID, err)
	}

	return raw, false, nil
}

// pickBalance chooses the figure the UI should show: the ledger balance
// (amount owed) for credit accounts, the available balance for the rest,
// each falling back to the other when the provider omits one.
func pickBalance(bal *bankapi.Balance, credit bool) (float64, error) {
	if credit {
		if bal.LedgerString != "" {
			return bal.Ledger()
		}
		return bal.Available()
	}
	if bal.AvailableString != "" {
		return bal.Available()
	}
	return bal.Ledger()
}

// brokerageSide returns the unified accounts under the user's aggregator
// identity. An auth failure does not delete the stored identity; it
// surfaces a reconnection placeholder so the UI can prompt the user.
func (m *Merger) brokerageSide(ctx context.Context, userID int64) ([]ConnectedAccount, string) {
	ident, err := m.identities.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			return nil, ErrClassNotConnected
		}
		log.Printf("User %d: Failed to read registration: %v", userID, err)
		return nil, ErrClassFetchFailed
	}

	aggAccs, err := m.brokerage.ListAccounts(ctx, ident.ProviderUserID, ident.ProviderSecret)
	if err != nil {
		var apiErr *aggregator.APIError
		if errors.As(err, &apiErr) &&
			(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			log.Printf("User %d: Aggregator rejected stored credentials, keeping identity and flagging reconnect", userID)
			return []ConnectedAccount{reconnectPlaceholder(m.now())}, ErrClassAuthFailed
		}
		log.Printf("User %d: Brokerage fetch failed: %v", userID, err)
		return nil, ErrClassFetchFailed
	}

	now := m.now()
	out := make([]ConnectedAccount, 0, len(aggAccs))

	for _, a := range aggAccs {
		total := a.TotalValue()
		cash := a.CashValue()
		holdingsValue := total - cash
		buyingPower := a.BuyingPowerValue()

		institution := aggregator.AccountInstitution(a)
		if institution == "" {
			institution = "Brokerage"
		}

		provider := "brokerage"
		if isCryptoAccount(a) {
			provider = "crypto"
		}

		ca := ConnectedAccount{
			ID:              a.ID,
			Provider:        provider,
			AccountType:     "investment",
			DisplayName:     displayName(a.Name, institution),
			InstitutionName: institution,
			BalanceAmount:   total,
			Currency:        a.CurrencyCode(),
			Cash:            &cash,
			HoldingsValue:   &holdingsValue,
			BuyingPower:     &buyingPower,
			LastUpdated:     now,
		}
		out = append(out, ca)

		m.refreshHoldings(ctx, ident, a.ID)
	}

	return out, ""
}

// refreshHoldings recomputes and persists the holdings snapshot for one
// account. Position values are always derived from quantity and prices
// locally; upstream "current value" figures are not trusted. Failures are
// logged and never degrade the dashboard.
func (m *Merger) refreshHoldings(ctx context.Context, ident *identity.Identity, accountID string) {
	if m.holdings == nil {
		return
	}

	positions, err := m.brokerage.GetPositions(ctx, ident.ProviderUserID, ident.ProviderSecret, accountID)
	if err != nil {
		log.Printf("User %d: Positions fetch failed for account %s: %v", ident.UserID, accountID, err)
		return
	}

	holdings := make([]Holding, 0, len(positions))
	for _, p := range positions {
		holdings = append(holdings, Holding{
			AccountID:    accountID,
			Symbol:       p.SymbolCode(),
			Description:  p.Symbol.Symbol.Description,
			Quantity:     p.Units,
			AverageCost:  p.AveragePurchasePrice,
			CurrentPrice: p.Price,
			CurrentValue: p.Units * p.Price,
			ProfitLoss:   (p.Price - p.AveragePurchasePrice) * p.Units,
		})
	}

	if err := m.holdings.ReplaceForAccount(ctx, accountID, holdings); err != nil {
		log.Printf("User %d: Failed to persist holdings for account %s: %v", ident.UserID, accountID, err)
	}
}

// computeTotals fills the derived aggregates and per-account percentages.
// Money math runs on decimals; the one-decimal percentage is
// round(balance/totalAssets*1000)/10, and credit accounts always report 0.
func computeTotals(view *View) {
	assets := decimal.Zero
	debtSigned := decimal.Zero
	bankAssets := decimal.Zero
	investment := decimal.Zero
	crypto := decimal.Zero

	for _, ca := range view.Accounts {
		bal := decimal.NewFromFloat(ca.BalanceAmount)
		if ca.AccountType == "credit" {
			debtSigned = debtSigned.Add(bal)
			continue
		}
		assets = assets.Add(bal)
		switch ca.Provider {
		case "bank":
			bankAssets = bankAssets.Add(bal)
		case "crypto":
			crypto = crypto.Add(bal)
		default:
			investment = investment.Add(bal)
		}
	}

	thousand := decimal.NewFromInt(1000)
	ten := decimal.NewFromInt(10)
	for i := range view.Accounts {
		ca := &view.Accounts[i]
		if ca.AccountType == "credit" || !assets.IsPositive() {
			ca.PercentOfTotal = 0
			continue
		}
		pct := decimal.NewFromFloat(ca.BalanceAmount).Div(assets).Mul(thousand).Round(0).Div(ten)
		ca.PercentOfTotal = pct.InexactFloat64()
	}

	view.Totals = Totals{
		TotalAssets:     assets.InexactFloat64(),
		TotalBalance:    assets.Add(debtSigned).InexactFloat64(),
		BankAssets:      bankAssets.InexactFloat64(),
		InvestmentValue: investment.InexactFloat64(),
		CryptoValue:     crypto.InexactFloat64(),
		TotalDebt:       debtSigned.Neg().InexactFloat64(),
	}
}

// displayName replaces institution-default account names with
// "{institution} {accountType}".
func displayName(name, institution string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.EqualFold(trimmed, "default") {
		return fmt.Sprintf("%s Investment", institution)
	}
	return trimmed
}

func isCryptoAccount(a aggregator.Account) bool {
	if strings.EqualFold(a.RawType, "crypto") {
		return true
	}
	if v, ok := a.Meta["type"].(string); ok && strings.EqualFold(v, "crypto") {
		return true
	}
	return false
}

func currencyOrDefault(c string) string {
	if c == "" {
		return "USD"
	}
	return c
}

func reconnectPlaceholder(now time.Time) ConnectedAccount {
	return ConnectedAccount{
		ID:                "brokerage-reconnect",
		Provider:          "brokerage",
		AccountType:       "investment",
		DisplayName:       "Brokerage (reconnect required)",
		InstitutionName:   "Brokerage",
		NeedsReconnection: true,
		LastUpdated:       now,
	}
}
