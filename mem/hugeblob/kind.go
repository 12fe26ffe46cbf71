package hugeblob

import (
	"fmt"
	"os"
)

// PageKind indicates how a blob is backed.
type PageKind int

// PageKind values.
const (
	PageAnonymous     PageKind = iota // anonymous mapping with default pages
	PageAnonymousHuge                 // anonymous mapping with huge page hint or MAP_HUGETLB
	PageFile                          // shared mapping of a file, normally on hugetlbfs
)

func (kind PageKind) String() string {
	switch kind {
	case PageAnonymous:
		return "anonymous-default"
	case PageAnonymousHuge:
		return "anonymous-with-huge-hint"
	case PageFile:
		return "huge-file-backed"
	}
	return fmt.Sprintf("PageKind(%d)", int(kind))
}

// MarshalText implements encoding.TextMarshaler interface.
func (kind PageKind) MarshalText() ([]byte, error) {
	return []byte(kind.String()), nil
}

func (kind PageKind) pageSize() int {
	if kind == PageAnonymous {
		return os.Getpagesize()
	}
	return DefaultHugePage
}
