package core

import (
	"strings"

	"watchbook/internal/currency"
)

const (
	StatusPending   OrderStatus = "Очакван"
	StatusDelivered OrderStatus = "Доставен"
	StatusFree      OrderStatus = "Свободен"
	StatusOther     OrderStatus = "Други"
)

const (
	TypeStandard InventoryType = "стандарт"
	TypePremium  InventoryType = "премиум"
)

const (
	StockOut StockStatus = "out"
	StockLow StockStatus = "low"
	StockIn  StockStatus = "in"
)

type (
	OrderStatus   string
	InventoryType string
	StockStatus   string

	// Order is a single watch sale. Money fields keep the unit in their name;
	// sellEUR and extrasEUR are EUR in every era.
	Order struct {
		ID          int64       `json:"id"`
		Date        string      `json:"date"`
		Client      string      `json:"client"`
		Phone       string      `json:"phone"`
		Origin      string      `json:"origin"`
		Vendor      string      `json:"vendor"`
		Model       string      `json:"model"`
		ImageData   string      `json:"imageData,omitempty"`
		CostUSD     float64     `json:"costUSD"`
		ShippingUSD float64     `json:"shippingUSD"`
		ExtrasEUR   float64     `json:"extrasEUR"`
		SellEUR     float64     `json:"sellEUR"`
		Status      OrderStatus `json:"status"`
		FullSet     bool        `json:"fullSet"`
		Notes       string      `json:"notes"`
		MonthKey    MonthKey    `json:"monthKey"`
		TotalEUR    float64     `json:"totalEUR"`
		BalanceEUR  float64     `json:"balanceEUR"`
	}

	Client struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Phone           string `json:"phone"`
		Email           string `json:"email"`
		Address         string `json:"address"`
		PreferredSource string `json:"preferredSource"`
		Notes           string `json:"notes"`
		CreatedAt       string `json:"createdAt,omitempty"`
	}

	// ExpenseLine is one monthly expense. Amount is expressed in Currency,
	// which is EUR for everything written by this process.
	ExpenseLine struct {
		ID        int64         `json:"id"`
		MonthKey  MonthKey      `json:"monthKey"`
		Name      string        `json:"name"`
		Amount    float64       `json:"amount"`
		Currency  currency.Code `json:"currency,omitempty"`
		Note      string        `json:"note"`
		IsDefault bool          `json:"isDefault"`
	}

	InventoryItem struct {
		ID            string        `json:"id"`
		Brand         string        `json:"brand"`
		Type          InventoryType `json:"type"`
		PurchasePrice float64       `json:"purchasePrice"`
		SellPrice     float64       `json:"sellPrice"`
		Stock         int           `json:"stock"`
		Ordered       int           `json:"ordered"`
	}

	// DefaultExpense is a template line installed into fresh months.
	DefaultExpense struct {
		Name   string  `json:"name" yaml:"name"`
		Amount float64 `json:"amount" yaml:"amount"`
		Note   string  `json:"note,omitempty" yaml:"note"`
	}

	Settings struct {
		USDRate         float64          `json:"usdRate"`
		FactoryShipping float64          `json:"factoryShipping"`
		Origins         []string         `json:"origins"`
		Vendors         []string         `json:"vendors"`
		DefaultExpenses []DefaultExpense `json:"defaultExpenses,omitempty"`
		// LastOrderID is the highest order id ever assigned. It never
		// decreases, so ids of deleted orders are not handed out again.
		LastOrderID int64 `json:"lastOrderId,omitempty"`
	}

	MonthSnapshot struct {
		Orders   []Order       `json:"orders"`
		Expenses []ExpenseLine `json:"expenses"`
	}
)

// Built-in settings used when nothing is persisted.
const (
	DefaultUSDRate         = 0.88
	DefaultFactoryShipping = 1.5
)

// DefaultSettings returns the settings of a fresh installation.
func DefaultSettings() Settings {
	return Settings{
		USDRate:         DefaultUSDRate,
		FactoryShipping: DefaultFactoryShipping,
		Origins:         []string{"OLX", "Bazar.bg", "Facebook", "Instagram", "Препоръка"},
		Vendors:         []string{},
	}
}

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusDelivered, StatusFree, StatusOther:
		return true
	}
	return false
}

func (t InventoryType) Valid() bool {
	return t == TypeStandard || t == TypePremium
}

func (o Order) Validate() error {
	if _, err := ParseDate(o.Date); err != nil {
		return err
	}
	if !o.Status.Valid() {
		return ErrInvalidStatus
	}
	if o.CostUSD < 0 || o.ShippingUSD < 0 || o.ExtrasEUR < 0 || o.SellEUR < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

func (e ExpenseLine) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if !e.MonthKey.Valid() {
		return ErrInvalidMonth
	}
	if e.Amount < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (i InventoryItem) Validate() error {
	if strings.TrimSpace(i.Brand) == "" {
		return ErrEmptyName
	}
	if !i.Type.Valid() {
		return ErrInvalidQuantity
	}
	if i.Stock < 0 {
		return ErrNegativeStock
	}
	if i.Ordered < 0 {
		return ErrInvalidQuantity
	}
	if i.PurchasePrice < 0 || i.SellPrice < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Value is stock × purchase price.
func (i InventoryItem) Value() float64 {
	return currency.Round(float64(i.Stock) * i.PurchasePrice)
}

// PotentialRevenue is stock × sell price.
func (i InventoryItem) PotentialRevenue() float64 {
	return currency.Round(float64(i.Stock) * i.SellPrice)
}

func (i InventoryItem) StockStatus() StockStatus {
	switch {
	case i.Stock <= 0:
		return StockOut
	case i.Stock <= 2:
		return StockLow
	default:
		return StockIn
	}
}

// NameKey is the comparison key for client names: trimmed, case folded.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DedupeOrdered trims values, drops blanks and keeps the first occurrence of
// each value.
func DedupeOrdered(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Normalize fills defaults for missing fields and collapses duplicate
// origins and vendors.
func (s Settings) Normalize() Settings {
	if s.USDRate <= 0 {
		s.USDRate = DefaultUSDRate
	}
	if s.FactoryShipping < 0 {
		s.FactoryShipping = DefaultFactoryShipping
	}
	s.Origins = DedupeOrdered(s.Origins)
	s.Vendors = DedupeOrdered(s.Vendors)
	return s
}

func (s Settings) Clone() Settings {
	s.Origins = append([]string{}, s.Origins...)
	s.Vendors = append([]string{}, s.Vendors...)
	if s.DefaultExpenses != nil {
		s.DefaultExpenses = append([]DefaultExpense{}, s.DefaultExpenses...)
	}
	return s
}

// Clone returns a deep copy with non-nil slices.
func (m MonthSnapshot) Clone() MonthSnapshot {
	return MonthSnapshot{
		Orders:   append([]Order{}, m.Orders...),
		Expenses: append([]ExpenseLine{}, m.Expenses...),
	}
}

// IsEmpty reports whether the month holds neither orders nor expenses.
func (m MonthSnapshot) IsEmpty() bool {
	return len(m.Orders) == 0 && len(m.Expenses) == 0
}

// WithTotals fills the derived money fields. usdRate is EUR per USD.
func (o Order) WithTotals(usdRate float64) Order {
	o.TotalEUR = currency.Round(currency.USDToEUR(o.CostUSD+o.ShippingUSD, usdRate) + o.ExtrasEUR)
	o.BalanceEUR = currency.Round(o.SellEUR - o.TotalEUR)
	return o
}
