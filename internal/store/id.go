package store

import "fmt"

// displayID formats the monotonic per-account sequence into the
// human-readable identifier shown in the UI and admin panel.
func displayID(seq int64) string {
	return fmt.Sprintf("U%06d", seq)
}
