package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderWelcome(t *testing.T) {
	email, err := Render(Welcome, Data{
		Brand:        "Acme",
		Position:     3,
		ReferralLink: "https://waitlist.ca/acme?ref=abc123",
		Year:         2026,
	})
	require.NoError(t, err)

	assert.Equal(t, "🎉 You're #3 on the Acme waitlist!", email.Subject)
	assert.Contains(t, email.HTML, "#3")
	assert.Contains(t, email.HTML, "https://waitlist.ca/acme?ref=abc123")
	assert.Contains(t, email.HTML, "twitter.com/intent/tweet")
	assert.Contains(t, email.Text, "YOUR POSITION: #3")
}

func TestRenderDayTwoAndFive(t *testing.T) {
	email, err := Render(DayTwo, Data{Brand: "Acme", Position: 12, ReferralCount: 2, ReferralLink: "https://x/acme?ref=a"})
	require.NoError(t, err)
	assert.Equal(t, "⚡ Quick tip to jump the line (you're #12)", email.Subject)
	assert.Contains(t, email.Text, "You've already referred 2 people! Keep the momentum going.")

	email, err = Render(DayFive, Data{Brand: "Acme", BaseURL: "https://waitlist.ca"})
	require.NoError(t, err)
	assert.Equal(t, "💡 Your waitlist is waiting...", email.Subject)
	assert.Contains(t, email.Text, "https://waitlist.ca")

	_, err = Render("nope", Data{})
	assert.Error(t, err)
}

func TestReferralSummary(t *testing.T) {
	assert.Equal(t, "You haven't referred anyone yet. Now's the perfect time to start!", ReferralSummary(0))
	assert.Equal(t, "You've already referred 1 person! Keep the momentum going.", ReferralSummary(1))
	assert.Equal(t, "You've already referred 5 people! Keep the momentum going.", ReferralSummary(5))
}
