package types

// AlarmType identifies the delivery channel of an alarm definition.
type AlarmType string

const (
	AlarmNotification AlarmType = "notification"
	AlarmEmail        AlarmType = "email"
)

// Valid reports whether the alarm type is one of the known channels.
func (t AlarmType) Valid() bool {
	return t == AlarmNotification || t == AlarmEmail
}

// LeadUnit is the unit in which an alarm's lead time is expressed.
// Lead times are always normalized to whole minutes for comparison;
// the unit only affects how the stored integer is scaled.
type LeadUnit string

const (
	LeadMinutes LeadUnit = "minutes"
	LeadHours   LeadUnit = "hours"
	LeadDays    LeadUnit = "days"
)

// minutesPerUnit maps each lead unit to its exact minute multiplier.
// Integer arithmetic only; fractional lead times are not representable.
var minutesPerUnit = map[LeadUnit]int{
	LeadMinutes: 1,
	LeadHours:   60,
	LeadDays:    1440,
}

// NormalizeLead converts a (value, unit) lead time to whole minutes.
// Unknown units are treated as minutes so a corrupt row degrades to the
// smallest possible lead rather than silently inflating it.
func NormalizeLead(value int, unit LeadUnit) int {
	mult, ok := minutesPerUnit[unit]
	if !ok {
		mult = 1
	}
	return value * mult
}

// AttendeeState tracks an attendee's response to an event invitation.
type AttendeeState string

const (
	AttendeeNeedsAction AttendeeState = "needs_action"
	AttendeeAccepted    AttendeeState = "accepted"
	AttendeeTentative   AttendeeState = "tentative"
	AttendeeDeclined    AttendeeState = "declined"
)
