package utils

import "errors"

// ErrorRecordNotFound is the lookup-miss sentinel shared by the model
// helpers so callers do not have to depend on gorm's error directly.
var ErrorRecordNotFound = errors.New("record not found")
