// Package model defines the core domain types shared by the local and remote
// backends: events, registrations, users, team, gallery and site config.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ID is an opaque identifier. It is always written as a JSON string but
// accepts JSON numbers too, because the seed catalog and the hosted backend
// use numeric ids.
type ID string

// UnmarshalJSON accepts both "12" and 12.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// EventType distinguishes reservable events from global astronomical ones.
type EventType string

const (
	EventBooking  EventType = "booking"
	EventRealtime EventType = "realtime"
)

// EventDate is the day/month pair shown on event cards. Month is a 3-letter
// Spanish code (ENE..DIC). Year is only set for events created from a full
// calendar date.
type EventDate struct {
	Day   string `json:"day"`
	Month string `json:"month"`
	Year  int    `json:"year,omitempty"`
}

// Event is either a booking event (slots, price) or a realtime event.
type Event struct {
	ID          ID        `json:"id"`
	Title       string    `json:"title"`
	Date        EventDate `json:"date"`
	Location    string    `json:"location"`
	Time        string    `json:"time"`
	Type        EventType `json:"type,omitempty"`
	Slots       *int      `json:"slots,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	SourceURL   string    `json:"sourceUrl,omitempty"`
}

// Kind returns the event type, treating a missing type as booking.
func (e *Event) Kind() EventType {
	if e.Type == "" {
		return EventBooking
	}
	return e.Type
}

// IsBooking reports whether the event can be reserved.
func (e *Event) IsBooking() bool {
	return e.Kind() == EventBooking
}

// Remaining returns the number of available slots.
func (e *Event) Remaining() int {
	if e.Slots == nil {
		return 0
	}
	return *e.Slots
}

// IsFull returns true when no slots remain.
func (e *Event) IsFull() bool {
	return e.Remaining() <= 0
}

// DefaultSlots is the capacity given to events created from the admin panel.
const DefaultSlots = 20

// EventDraft is the admin payload for a new event. Currency only drives the
// price selector in the UI and is never persisted by the hosted backend.
type EventDraft struct {
	Title       string    `json:"title"`
	Date        EventDate `json:"date"`
	Location    string    `json:"location"`
	Time        string    `json:"time"`
	Type        EventType `json:"type,omitempty"`
	Slots       *int      `json:"slots,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	SourceURL   string    `json:"sourceUrl,omitempty"`
}

// Event converts the draft into an event with the given id, dropping the
// UI-only fields.
func (d EventDraft) Event(id ID) Event {
	e := Event{
		ID:          id,
		Title:       d.Title,
		Date:        d.Date,
		Location:    d.Location,
		Time:        d.Time,
		Type:        d.Type,
		Description: d.Description,
		Image:       d.Image,
		SourceURL:   d.SourceURL,
	}
	if e.Kind() == EventBooking {
		slots := DefaultSlots
		if d.Slots != nil {
			slots = *d.Slots
		}
		e.Slots = &slots
		e.Price = d.Price
		e.SourceURL = ""
	}
	return e
}

// Registration links a user to an event.
type Registration struct {
	ID        ID        `json:"id,omitempty"`
	UserID    string    `json:"userId"`
	EventID   ID        `json:"eventId"`
	CreatedAt time.Time `json:"date"`
}

// Role is the authorization level of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the identity held by the session manager. It never carries a
// password.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether the user may use the admin panel.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// RegistrationKey is the user reference stored on registrations: the id when
// present, the email otherwise.
func (u *User) RegistrationKey() string {
	if u.ID != "" {
		return u.ID
	}
	return u.Email
}

// StoredUser is a row of the local users table.
type StoredUser struct {
	User
	PasswordHash string `json:"passwordHash"`
}

// TeamMember is shown in the "about us" section.
type TeamMember struct {
	ID        ID     `json:"id"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Expertise string `json:"expertise,omitempty"`
	Image     string `json:"image"`
}

// GalleryItem is a photo with its caption.
type GalleryItem struct {
	ID  ID     `json:"id"`
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// NewsItem is a curated space-news entry.
type NewsItem struct {
	ID      int       `json:"id"`
	Title   string    `json:"title"`
	Date    time.Time `json:"date"`
	Excerpt string    `json:"excerpt"`
	Image   string    `json:"image"`
	Source  string    `json:"source"`
	URL     string    `json:"url"`
}

// ChatTurn is one message of a chat conversation.
type ChatTurn struct {
	Sender string `json:"sender"` // user, bot or system
	Text   string `json:"text"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ParseID converts an integer id into an ID.
func ParseID(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}
