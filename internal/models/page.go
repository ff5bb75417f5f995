package models

// Page はページネーションされたタスク一覧です。
type Page struct {
	Items   []*Task
	Number  int
	PerPage int
	Total   int
}

// Pages は総ページ数を返します。タスクが0件でも1を返します。
func (p *Page) Pages() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

func (p *Page) HasPrev() bool { return p.Number > 1 }

func (p *Page) HasNext() bool { return p.Number < p.Pages() }

func (p *Page) PrevNum() int { return p.Number - 1 }

func (p *Page) NextNum() int { return p.Number + 1 }

// PageNumbers はページャーに表示するページ番号を返します。
// 省略箇所は0で表します。
func (p *Page) PageNumbers() []int {
	const edge, around = 2, 2
	last := p.Pages()
	var nums []int
	prevShown := 0
	for n := 1; n <= last; n++ {
		if n <= edge || n > last-edge || (n >= p.Number-around && n <= p.Number+around) {
			if prevShown != 0 && n != prevShown+1 {
				nums = append(nums, 0)
			}
			nums = append(nums, n)
			prevShown = n
		}
	}
	return nums
}
