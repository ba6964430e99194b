package mailbox

import (
	"strings"
	"time"

	. "gopkg.in/check.v1"
)

var searchFilterTests = []struct {
	minAge time.Duration
	now    time.Time
}{
	{0, time.Date(2020, 1, 15, 12, 0, 0, 0, time.UTC)},
	{3 * day, time.Date(2020, 1, 15, 12, 0, 0, 0, time.UTC)},
}

func (s *SourceSuite) Test(c *C) {
	for _, tt := range searchFilterTests {
		filter := buildSearchFilter(tt.minAge, tt.now)
		c.Assert(strings.Contains(filter, "UNDELETED SEEN UNFLAGGED"), Equals, true)
		c.Assert(strings.Contains(filter, "NOT HEADER "+CustomHeader+" \"\""), Equals, true)
		wantDate := tt.now.Add(-tt.minAge).Format(imapDateFormat)
		c.Assert(strings.Contains(filter, "SENTBEFORE "+wantDate), Equals, true)
		c.Assert(strings.Contains(filter, "BEFORE "+wantDate), Equals, true)
	}
}

func (s *SourceSuite) TestMinAgeShiftsDate(c *C) {
	now := time.Date(2020, 1, 15, 12, 0, 0, 0, time.UTC)
	noAge := buildSearchFilter(0, now)
	aged := buildSearchFilter(5*day, now)
	c.Assert(noAge, Not(Equals), aged)
}
