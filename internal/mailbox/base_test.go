package mailbox

import (
	"testing"

	. "gopkg.in/check.v1"
)

func Test(t *testing.T) {
	TestingT(t)
}

type SourceSuite struct{}

var _ = Suite(&SourceSuite{})
