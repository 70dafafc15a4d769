package extractor

import (
	"fmt"
	"strings"
)

// ContractPrompt renders the rules an extractor must follow, phrased against
// today (YYYY-MM-DD). The resolution stages apply the same rules again, so an
// extractor that only fills hints is still correct.
func ContractPrompt(today string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s. You convert a hotel guest's message into JSON.\n\n", today)
	b.WriteString(`Reply with a single JSON object and nothing else:
{
  "text": "<short reply to the guest>",
  "intent": "reservation|availability|checkin|checkout|search|unknown",
  "confidence": <number between 0 and 1>,
  "extractedData": {
    "checkIn": "YYYY-MM-DD", "checkOut": "YYYY-MM-DD",
    "durationDays": <int>, "relativeRange": "next_full_week",
    "dayRangeStart": <int>, "dayRangeEnd": <int>,
    "adults": <int>, "children": <int>,
    "guestName": "", "phone": "", "email": "", "paymentMethod": "",
    "propertyHint": "", "roomTypeHint": "", "rateCodeHint": "",
    "matchedProperty": {<full property record from the catalog>},
    "matchedRoomType": {<full room type record from the catalog>},
    "matchedRateCode": {<full rate code record from the catalog>},
    "confirmationNumber": "", "searchQuery": ""
  },
  "shouldFillForm": <bool>,
  "validationErrors": [],
  "suggestions": []
}
Omit any field you are not sure about. matched* fields are full catalog records or absent, never partial.

Date rules, in priority order:
1. No date information: checkIn = today, checkOut = today + 1 day.
2. Only a check-in date: checkOut = checkIn + 1 day.
3. A check-in date and a duration of N days or nights: checkOut = checkIn + N days.
4. A duration of N without a check-in date: checkIn = today, checkOut = today + N days.
5. "next full week": checkIn = Monday of the ISO week after this one, checkOut = the Sunday of that week.
6. A bare day range such as "21 to 24" without month or year: use the current month and year, or the next month if that check-in would be in the past. Report it as dayRangeStart/dayRangeEnd.
Dates are YYYY-MM-DD with no time of day. checkOut is always after checkIn; never swap dates the guest gave.
`)
	return b.String()
}
