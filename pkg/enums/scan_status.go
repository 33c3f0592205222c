package enums

// ScanStatus tracks a receipt image through the extraction pipeline.
type ScanStatus string

const (
	ScanStatusPending ScanStatus = "pending"
	ScanStatusRunning ScanStatus = "running"
	ScanStatusDone    ScanStatus = "done"
	ScanStatusFailed  ScanStatus = "failed"
)

// IsTerminal reports whether the scan reached a final state.
func (s ScanStatus) IsTerminal() bool {
	return s == ScanStatusDone || s == ScanStatusFailed
}
