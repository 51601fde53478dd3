package repository

import "errors"

// ErrNoRowsAffected signals an update or delete that matched no rows.
var ErrNoRowsAffected = errors.New("no rows affected")
