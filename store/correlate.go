package store

import "github.com/kaipokrandt/iotsecuritydash/telemetry"

// Correlate maps each window position to whether some anomaly references
// that reading's identity. It builds a set over the ledger's references
// first so the cost is linear in window plus ledger size, never their
// product. An anomaly referencing an evicted reading simply matches
// nothing.
func Correlate(window []telemetry.ReadingEvent, ledger []telemetry.AnomalyEvent) map[int]bool {
	referenced := make(map[string]struct{}, len(ledger))
	for _, anomaly := range ledger {
		if anomaly.ReadingID != "" {
			referenced[anomaly.ReadingID] = struct{}{}
		}
	}

	index := make(map[int]bool, len(window))
	for i, reading := range window {
		_, hit := referenced[reading.ID]
		index[i] = hit
	}
	return index
}
