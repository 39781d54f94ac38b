// Package calendar renders appointments as iCalendar events for download.
package calendar

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	productID = "-//autisme-connect//appointments//FR"
	stampFmt  = "20060102T150405Z"
	lineLimit = 75
)

// uidNamespace keeps UIDs stable for a given appointment id.
var uidNamespace = uuid.MustParse("6f1c3a55-0c7e-4b8e-9a4f-3d2b1e0c9a77")

// Event carries the six exported fields and the stamp of the export.
type Event struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	UID         string    `json:"unique_id"`

	// Stamp is the DTSTAMP of the event, the last change of the appointment.
	// The render time is used when it is zero.
	Stamp time.Time `json:"-"`
}

// UID returns the stable unique id of an appointment event.
func UID(appointmentID int64) string {
	return uuid.NewSHA1(uidNamespace, []byte("appointment:"+strconv.FormatInt(appointmentID, 10))).String()
}

// Render writes a VCALENDAR containing one VEVENT.
func Render(e Event) string {
	var b strings.Builder
	writeLine(&b, "BEGIN:VCALENDAR")
	writeLine(&b, "VERSION:2.0")
	writeLine(&b, "PRODID:"+productID)
	writeLine(&b, "CALSCALE:GREGORIAN")
	writeLine(&b, "BEGIN:VEVENT")
	stamp := e.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	writeLine(&b, "UID:"+escape(e.UID))
	writeLine(&b, "DTSTAMP:"+stamp.UTC().Format(stampFmt))
	writeLine(&b, "DTSTART:"+e.Start.UTC().Format(stampFmt))
	writeLine(&b, "DTEND:"+e.End.UTC().Format(stampFmt))
	writeLine(&b, "SUMMARY:"+escape(e.Summary))
	writeLine(&b, "DESCRIPTION:"+escape(e.Description))
	writeLine(&b, "LOCATION:"+escape(e.Location))
	writeLine(&b, "END:VEVENT")
	writeLine(&b, "END:VCALENDAR")
	return b.String()
}

func escape(value string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		";", `\;`,
		",", `\,`,
		"\r\n", `\n`,
		"\n", `\n`,
	)
	return r.Replace(value)
}

// writeLine folds content lines so no physical line exceeds 75 octets,
// counting the leading space of continuations, without splitting a UTF-8
// sequence.
func writeLine(b *strings.Builder, line string) {
	limit := lineLimit
	for len(line) > limit {
		cut := limit
		for cut > 0 && !isRuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		limit = lineLimit - 1
	}
	b.WriteString(line)
	b.WriteString("\r\n")
}

func isRuneStart(c byte) bool {
	return c&0xC0 != 0x80
}
