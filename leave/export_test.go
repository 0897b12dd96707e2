package leave

import "time"

// Clock hooks for the external test package.

func SetLedgerClock(l *Ledger, now func() time.Time)         { l.now = now }
func SetAccrualClock(e *AccrualEngine, now func() time.Time) { e.now = now }
func SetDirectoryClock(d *Directory, now func() time.Time)   { d.now = now }
