// Package resource describes the console's API resources: their typed
// payloads, the REST routes they live under, the tags their query results
// carry and the optimistic patches their mutations apply.
package resource

// Resource names as used in queries, routes and tags.
const (
	Ads           = "ads"
	Providers     = "providers"
	Customers     = "customers"
	FAQs          = "faq"
	CMS           = "cms"
	Transactions  = "transactions"
	Notifications = "notifications"
	Bids          = "bids"
	Orders        = "orders"
	Discounts     = "discounts"
)

// Record is a payload with a server-assigned identity.
type Record interface {
	Identity() int64
}

// AdAudience is who an ad is shown to.
type AdAudience string

const (
	AdForUsers   AdAudience = "user"
	AdForVendors AdAudience = "vendor"
)

// Ad media kinds. URL ads point at remote media; the extension of the URL
// decides whether it renders as image or video.
const (
	MediaImage = "image"
	MediaVideo = "video"
	MediaURL   = "url"
)

type Ad struct {
	ID         int64      `json:"id"`
	Image      string     `json:"image"`
	Type       AdAudience `json:"type"`
	Extensions string     `json:"extensions"`
	Position   int        `json:"position,omitempty"`
}

func (a Ad) Identity() int64 { return a.ID }

type Provider struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Category string `json:"category"`
	JoinDate string `json:"joinDate"`
	Status   string `json:"status"`
}

func (p Provider) Identity() int64 { return p.ID }

type Customer struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Status   string `json:"status"`
	Approved bool   `json:"approved"`
}

func (c Customer) Identity() int64 { return c.ID }

type FAQ struct {
	ID       int64  `json:"id"`
	Category string `json:"category"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	IsActive bool   `json:"is_active"`
}

func (f FAQ) Identity() int64 { return f.ID }

// CMSDocument is one editable text page (terms, privacy policy, about).
type CMSDocument struct {
	ID      int64  `json:"id"`
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (d CMSDocument) Identity() int64 { return d.ID }

type Transaction struct {
	ID            int64   `json:"id"`
	Date          string  `json:"date"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	Kind          string  `json:"type"` // debit | credit
	TransactionID string  `json:"transactionId"`
}

func (t Transaction) Identity() int64 { return t.ID }

type Notification struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Time        string  `json:"time"`
	Audience    string  `json:"audience"`
	UserIDs     []int64 `json:"userIds,omitempty"`
}

func (n Notification) Identity() int64 { return n.ID }

type Bid struct {
	ID         int64   `json:"id"`
	Title      string  `json:"title"`
	Category   string  `json:"category"`
	Amount     float64 `json:"amount"`
	ProviderID int64   `json:"provider_id,omitempty"`
	Status     string  `json:"status"`
}

func (b Bid) Identity() int64 { return b.ID }

type Order struct {
	ID           int64   `json:"id"`
	OrderNumber  string  `json:"orderNumber"`
	CustomerName string  `json:"customerName"`
	ProviderName string  `json:"providerName"`
	Category     string  `json:"category"`
	Status       string  `json:"status"`
	OrderDate    string  `json:"orderDate"`
	TotalAmount  float64 `json:"totalAmount"`
}

func (o Order) Identity() int64 { return o.ID }

// Discount is one price band: orders between Min and Max get Percent off.
type Discount struct {
	ID      int64   `json:"id"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Percent float64 `json:"discount"`
}

func (d Discount) Identity() int64 { return d.ID }
