// Package views renders the checkout, success and cancel pages and serves
// the checkout script.
package views

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	PageCheckout = "checkout.html"
	PageSuccess  = "success.html"
	PageCancel   = "cancel.html"
)

// CheckoutPage carries everything checkout.js needs. ConfirmRedirectURL is
// the form-post variant of ConfirmURL; ReturnURL is where Stripe sends the
// browser back after a redirect-based payment method.
type CheckoutPage struct {
	ProductName        string
	PublishableKey     string
	Amount             int64
	Currency           string
	DisplayAmount      string
	IdempotencyKey     string
	IntentURL          string
	ConfirmURL         string
	ConfirmRedirectURL string
	ReturnURL          string
	CancelURL          string
	HostedURL          string
}

type SuccessPage struct {
	OrderNumber     string
	DisplayAmount   string
	Currency        string
	PaymentIntentID string
	// Verified is set when the values came from a valid signed receipt
	// rather than from bare query parameters.
	Verified    bool
	CheckoutURL string
}

type CancelPage struct {
	Error       string
	CheckoutURL string
}

type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: map[string]*template.Template{}}
	for _, page := range []string{PageCheckout, PageSuccess, PageCancel} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		r.pages[page] = t
	}
	return r, nil
}

func (r *Renderer) Render(w io.Writer, page string, data any) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	if err := t.ExecuteTemplate(w, "layout", data); err != nil {
		return fmt.Errorf("rendering %s: %w", page, err)
	}
	return nil
}

// Static serves the embedded assets; mount it with the /static/ prefix stripped.
func Static() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

// Currencies Stripe treats as having no minor unit.
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true,
	"kmf": true, "krw": true, "mga": true, "pyg": true, "rwf": true,
	"ugx": true, "vnd": true, "vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// FormatAmount turns an amount in minor units into a display string such
// as "20.00 USD".
func FormatAmount(amount int64, currency string) string {
	code := strings.ToLower(currency)
	if zeroDecimal[code] {
		return decimal.NewFromInt(amount).StringFixed(0) + " " + strings.ToUpper(code)
	}
	return decimal.New(amount, -2).StringFixed(2) + " " + strings.ToUpper(code)
}
