// Package templates renders the subscriber emails.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	texttemplate "text/template"
)

//go:embed *.html *.txt
var files embed.FS

const (
	Welcome = "welcome"
	DayTwo  = "day2"
	DayFive = "day5"
)

var (
	htmlSet = htmltemplate.Must(htmltemplate.ParseFS(files, "*.html"))
	textSet = texttemplate.Must(texttemplate.ParseFS(files, "*.txt"))
)

// Data feeds every template. Fields a template does not use are ignored.
type Data struct {
	Brand         string
	BaseURL       string
	Position      int64
	ReferralLink  string
	ReferralCount int64
	Year          int
}

type Email struct {
	Subject string
	HTML    string
	Text    string
}

type view struct {
	Data
	Subject         string
	PositionLabel   string
	ShareURL        string
	ReferralSummary string
}

func Render(name string, data Data) (Email, error) {
	v := view{Data: data}
	switch name {
	case Welcome:
		v.Subject = fmt.Sprintf("🎉 You're #%d on the %s waitlist!", data.Position, data.Brand)
		v.PositionLabel = "Your position on the waitlist"
	case DayTwo:
		v.Subject = fmt.Sprintf("⚡ Quick tip to jump the line (you're #%d)", data.Position)
		v.PositionLabel = "Your current position"
		v.ReferralSummary = ReferralSummary(data.ReferralCount)
	case DayFive:
		v.Subject = "💡 Your waitlist is waiting..."
	default:
		return Email{}, fmt.Errorf("unknown email template %q", name)
	}
	if data.ReferralLink != "" {
		text := fmt.Sprintf("I just joined the %s waitlist! Join me: %s", data.Brand, data.ReferralLink)
		v.ShareURL = "https://twitter.com/intent/tweet?text=" + url.QueryEscape(text)
	}

	var html, text bytes.Buffer
	if err := htmlSet.ExecuteTemplate(&html, name+".html", v); err != nil {
		return Email{}, fmt.Errorf("render %s html: %w", name, err)
	}
	if err := textSet.ExecuteTemplate(&text, name+".txt", v); err != nil {
		return Email{}, fmt.Errorf("render %s text: %w", name, err)
	}
	return Email{Subject: v.Subject, HTML: html.String(), Text: text.String()}, nil
}

func ReferralSummary(count int64) string {
	switch {
	case count == 1:
		return "You've already referred 1 person! Keep the momentum going."
	case count > 1:
		return fmt.Sprintf("You've already referred %d people! Keep the momentum going.", count)
	default:
		return "You haven't referred anyone yet. Now's the perfect time to start!"
	}
}
