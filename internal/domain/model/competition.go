// Package model contains the domain records shared between layers.
package model

import (
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and blob layout of competition dates.
const DateLayout = "2006-01-02"

// BlobSeparator joins record fields into a blob.
const BlobSeparator = " "

// Date is a calendar date without a time of day.
type Date struct {
	time.Time
}

// NewDate returns the date for y-m-d in UTC.
func NewDate(y int, m time.Month, d int) Date {
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses s with DateLayout. An empty string yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	if len(s) > len(DateLayout) {
		// Accept timestamps by keeping the date part.
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, errors.Join(ErrInvalidDate, err)
	}
	return Date{Time: t}, nil
}

// String renders the date with DateLayout, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MarshalJSON renders the date as "YYYY-MM-DD" or null.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(d.String())), nil
}

// UnmarshalJSON accepts "YYYY-MM-DD", an RFC 3339 timestamp, "" or null.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*d = Date{}
		return nil
	}
	unq, err := strconv.Unquote(s)
	if err != nil {
		return errors.Join(ErrInvalidDate, err)
	}
	parsed, err := ParseDate(unq)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// CompetitionRecord is one entry of the unified sports calendar.
// EKPNumber is the natural key and is unique across the corpus.
type CompetitionRecord struct {
	SportName        string   `json:"sport_name"`
	SportComposition string   `json:"sport_composition"`
	EKPNumber        string   `json:"ekp_number"`
	DateStart        Date     `json:"date_start"`
	DateEnd          Date     `json:"date_end"`
	City             string   `json:"city"`
	Discipline       string   `json:"discipline"`
	CompetitionClass string   `json:"competition_class"`
	Country          string   `json:"country"`
	MaxPeopleCount   int      `json:"max_people_count"`
	GendersAndAges   []string `json:"genders_and_ages"`

	// Registered is the current number of registered participants. It is not
	// part of the blob and changes independently of the index.
	Registered int `json:"registered"`
}

// Blob flattens the indexed fields into one string. Field order is fixed:
// sport name, composition, ekp number, start, end, city, discipline, class,
// country, capacity, gender/age descriptors.
func (r CompetitionRecord) Blob() string {
	parts := []string{
		r.SportName,
		r.SportComposition,
		r.EKPNumber,
		r.DateStart.String(),
		r.DateEnd.String(),
		r.City,
		r.Discipline,
		r.CompetitionClass,
		r.Country,
		strconv.Itoa(r.MaxPeopleCount),
		strings.Join(r.GendersAndAges, BlobSeparator),
	}
	return strings.Join(parts, BlobSeparator)
}

// Clone returns a copy that shares no memory with r.
func (r CompetitionRecord) Clone() CompetitionRecord {
	r.GendersAndAges = slices.Clone(r.GendersAndAges)
	return r
}
