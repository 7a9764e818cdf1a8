// internal/types/ids.go
package types

import "strconv"

// UserID is the chat transport's stable identifier for a user. Session,
// token, and dialog state are all keyed by it.
type UserID string

func UserIDFromInt64(id int64) UserID {
	return UserID(strconv.FormatInt(id, 10))
}
