package wizard

import "time"

// DateLayout is the date-of-birth input format.
const DateLayout = "2006-01-02"

// MinimumAge is the youngest age allowed to complete digital KYC.
const MinimumAge = 18

// Age is the number of whole years between dob and today.
func Age(dob, today time.Time) int {
	age := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		age--
	}
	return age
}

// AgeFrom parses a YYYY-MM-DD date of birth. Empty or unparsable input
// counts as age 0.
func AgeFrom(dob string, today time.Time) int {
	if dob == "" {
		return 0
	}
	t, err := time.Parse(DateLayout, dob)
	if err != nil {
		return 0
	}
	return Age(t, today)
}
