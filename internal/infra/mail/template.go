// Package mail renders and delivers price-drop emails.
package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/offmarket/offmarket/internal/domain"
)

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type templateData struct {
	ProductName  string
	StoreName    string
	TargetPrice  string
	CurrentPrice string
	AlertsURL    string
}

var htmlBody = htmltemplate.Must(htmltemplate.New("price_drop.html").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Price Alert Triggered!</h2>
  <p>Good news! A product on your watchlist has dropped to your target price.</p>
  <div style="background: #f5f5f5; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h3 style="margin-top: 0;">{{.ProductName}}</h3>
    <p><strong>Target Price:</strong> {{.TargetPrice}}</p>
    <p><strong>Current Price:</strong> {{.CurrentPrice}}</p>
    <p><strong>Store:</strong> {{.StoreName}}</p>
  </div>
  <p><a href="{{.AlertsURL}}" style="background: #0066cc; color: white; padding: 10px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">View Alert</a></p>
  <hr style="border: none; border-top: 1px solid #ddd; margin: 20px 0;">
  <p style="color: #666; font-size: 12px;">This is an automated message from Offmarket. Visit your alerts to manage notifications.</p>
</div>
`))

var textBody = texttemplate.Must(texttemplate.New("price_drop.txt").Parse(`Price Alert Triggered!

Good news! A product on your watchlist has dropped to your target price.

{{.ProductName}}
Target Price: {{.TargetPrice}}
Current Price: {{.CurrentPrice}}
Store: {{.StoreName}}

View your alerts: {{.AlertsURL}}
`))

// Render builds the price-drop message. Prices keep two decimals and are
// prefixed with the currency.
func Render(drop domain.PriceDrop, frontendURL string) (Message, error) {
	data := templateData{
		ProductName:  drop.ProductName,
		StoreName:    drop.StoreName,
		TargetPrice:  formatPrice(drop.Currency, drop.TargetPrice.StringFixed(2)),
		CurrentPrice: formatPrice(drop.Currency, drop.CurrentPrice.StringFixed(2)),
		AlertsURL:    strings.TrimRight(frontendURL, "/") + "/alerts",
	}

	var html, text bytes.Buffer
	if err := htmlBody.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}
	if err := textBody.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}

	return Message{
		To:      drop.To,
		Subject: "Price Alert: " + drop.ProductName,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

func formatPrice(currency, amount string) string {
	switch strings.ToUpper(currency) {
	case "", "USD", "ARS":
		return "$" + amount
	case "EUR":
		return "€" + amount
	default:
		return amount + " " + currency
	}
}
