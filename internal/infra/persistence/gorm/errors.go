package gormpersistence

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// isDuplicateEntry 识别唯一约束冲突。
// TranslateError 打开时各驱动返回 gorm.ErrDuplicatedKey，MySQL 另外按 1062 检查。
func isDuplicateEntry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	// 未开启 TranslateError 的 sqlite 连接
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
