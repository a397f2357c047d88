package paginate

import "testing"

func TestPage(t *testing.T) {
	cases := []struct {
		min, max         uint32
		page, pageSize uint32
	}{
		{5, 5, 5, 1},
		{1, 20, 1, 20},
		{11, 20, 2, 10},
		{5, 8, 2, 4},
		{17, 23, 3, 8},
		{5, 20, 1, 20},
	}

	for _, c := range cases {
		page, size := Page(c.min, c.max)
		if page != c.page || size != c.pageSize {
			t.Errorf("Page(%d, %d) = (%d, %d), want (%d, %d)",
				c.min, c.max, page, size, c.page, c.pageSize)
		}
		if size*(page-1)+1 > c.min || c.max > size*page {
			t.Errorf("Page(%d, %d) = (%d, %d) does not actually cover the range",
				c.min, c.max, page, size)
		}
	}
}
