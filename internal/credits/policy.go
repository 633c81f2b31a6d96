package credits

import "time"

// dailyGrant is the number of credits restored by the daily refresh.
const dailyGrant = 1

// applyDailyRefresh consumes today's entitlement the first time an account is
// loaded on a new calendar day. The credit is only restored when the balance is
// exhausted; a positive balance just moves the refresh date to today, so a
// credit carried over from yesterday counts as today's and cannot be refilled
// again before tomorrow. The bool reports whether a credit was granted.
func applyDailyRefresh(acct *Account, today time.Time) (Entry, bool) {
	if !acct.LastCreditRefreshDate.Before(today) {
		return Entry{}, false
	}
	acct.LastCreditRefreshDate = today
	if acct.CreditBalance != 0 {
		return Entry{}, false
	}
	acct.CreditBalance = dailyGrant
	return Entry{
		AccountID:    acct.ID,
		Kind:         EntryDailyRefresh,
		Amount:       dailyGrant,
		BalanceAfter: acct.CreditBalance,
	}, true
}
