package ryker

import "runtime"

// yield cooperatively hands off the scheduler to prevent one busy mailbox
// from starving siblings sharing the same worker pool.
func yield() { runtime.Gosched() }
