package common

import (
	"strings"

	"github.com/gobwas/glob"
)

// MatchPattern はパターンマッチングを行う
// ワイルドカード（*）を含む場合はglob形式でマッチング、
// 含まない場合は部分一致で判定する
func MatchPattern(name, pattern string) bool {
	if strings.Contains(pattern, "*") {
		g, err := glob.Compile(pattern)
		if err != nil {
			// 不正なパターンは部分一致にフォールバック
			return strings.Contains(name, pattern)
		}
		return g.Match(name)
	}
	return strings.Contains(name, pattern)
}
