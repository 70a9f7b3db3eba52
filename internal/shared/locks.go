package shared

import "fmt"

// ReconcileLockKey builds the redis key guarding a reconciliation rule run.
func ReconcileLockKey(rule string) string {
	return fmt.Sprintf("finhub:reconcile:%s:lock", rule)
}
