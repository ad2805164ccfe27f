package esi

import (
	"errors"
	"fmt"
)

// ErrTypeNotFound is returned when an item name does not resolve to a type.
var ErrTypeNotFound = errors.New("esi: type not found")

// FetchError describes a failed upstream call. Region and Page are set for
// market order pages.
type FetchError struct {
	Region      int32
	Page        int
	Status      int  // 0 for network failures
	RateLimited bool // rate limited again after the single retry
	Err         error
}

func (e *FetchError) Error() string {
	where := "esi"
	if e.Region != 0 {
		where = fmt.Sprintf("esi: region %d page %d", e.Region, e.Page)
	}
	if e.RateLimited {
		return fmt.Sprintf("%s: rate limited after retry: %v", where, e.Err)
	}
	return fmt.Sprintf("%s: %v", where, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func withPage(err error, region int32, page int) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		out := *fe
		out.Region = region
		out.Page = page
		return &out
	}
	return &FetchError{Region: region, Page: page, Err: err}
}
