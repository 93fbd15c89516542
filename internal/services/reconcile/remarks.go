package reconcile

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const remarkTimeLayout = "2006-01-02 15:04"

func primaryRemark(at time.Time, w decimal.Decimal, rows int) string {
	s := fmt.Sprintf("[%s] 入庫對帳：已到貨，重量 %s KG", at.Format(remarkTimeLayout), w.StringFixed(2))
	if rows > 1 {
		s += fmt.Sprintf("（同單號共 %d 筆，本列為主要列）", rows)
	}
	return s
}

func sharedRemark(at time.Time, rows int) string {
	return fmt.Sprintf("[%s] 入庫對帳：同單號共 %d 筆，重量歸零並標記到貨", at.Format(remarkTimeLayout), rows)
}
