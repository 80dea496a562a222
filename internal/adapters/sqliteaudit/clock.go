package sqliteaudit

import "time"

func defaultISONow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
