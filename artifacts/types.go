// Package artifacts generates derived content for rental listings and
// guests: listing summaries, property and guest personas, and ranked
// property recommendations. It builds prompts from domain records, runs
// them through a Generator, and repairs the structured output.
package artifacts

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Review is one guest review of a property.
type Review struct {
	Rating  int
	Comment string
}

// Property is the listing data the prompts are built from.
type Property struct {
	ID          int64
	Title       string
	Description string
	City        string
	Country     string
	Type        string
	Bedrooms    int
	Bathrooms   int
	MaxGuests   int
	PricePerDay float64
	Amenities   []string
	Reviews     []Review
}

// AverageRating averages the property's review ratings, each review
// contributing exactly one rating. Zero when there are no reviews.
func (p *Property) AverageRating() float64 {
	if len(p.Reviews) == 0 {
		return 0
	}
	total := lo.SumBy(p.Reviews, func(r Review) int { return r.Rating })
	return float64(total) / float64(len(p.Reviews))
}

// BookingRecord is one past stay used to profile a guest.
type BookingRecord struct {
	PropertyTitle string
	PropertyType  string
	City          string
	Country       string
	Nights        int
	Guests        int
}

// Guest is the traveler data the guest-facing prompts are built from.
type Guest struct {
	ID       int64
	Name     string
	Bookings []BookingRecord
	Reviews  []Review
}

// FormatProperty renders a property as the prompt fragment the generation
// templates consume.
func FormatProperty(p *Property) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", p.Title)
	fmt.Fprintf(&b, "Type: %s\n", p.Type)
	fmt.Fprintf(&b, "Location: %s, %s\n", p.City, p.Country)
	fmt.Fprintf(&b, "Bedrooms: %d, Bathrooms: %d, Max guests: %d\n", p.Bedrooms, p.Bathrooms, p.MaxGuests)
	fmt.Fprintf(&b, "Price per day: %.2f\n", p.PricePerDay)
	if len(p.Amenities) > 0 {
		fmt.Fprintf(&b, "Amenities: %s\n", strings.Join(p.Amenities, ", "))
	}
	fmt.Fprintf(&b, "Description: %s\n", p.Description)
	if len(p.Reviews) > 0 {
		fmt.Fprintf(&b, "Average rating: %.1f from %d reviews\n", p.AverageRating(), len(p.Reviews))
		for _, review := range lo.Slice(p.Reviews, 0, 5) {
			fmt.Fprintf(&b, "- (%d/5) %s\n", review.Rating, review.Comment)
		}
	}
	return b.String()
}

// FormatGuest renders a guest's history as a prompt fragment.
func FormatGuest(g *Guest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Guest: %s\n", g.Name)
	if len(g.Bookings) == 0 {
		b.WriteString("No previous stays.\n")
	}
	for _, booking := range g.Bookings {
		fmt.Fprintf(&b, "- Stayed %d nights at %q (%s) in %s, %s with %d guests\n",
			booking.Nights, booking.PropertyTitle, booking.PropertyType, booking.City, booking.Country, booking.Guests)
	}
	for _, review := range lo.Slice(g.Reviews, 0, 5) {
		fmt.Fprintf(&b, "- Reviewed a stay (%d/5): %s\n", review.Rating, review.Comment)
	}
	return b.String()
}
