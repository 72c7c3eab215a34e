package planner

import "schema-migrator/internal/domain"

// sortByDependency はテーブルを外部キーの参照先が先に来るよう並べ替える。
// 依存の無いテーブルは元の順序を保つ。参照が循環している場合は失敗せず、
// 残りのうち元の順序で最初のテーブルを取り出して循環を断ち切る。
func sortByDependency(tables []domain.Table) []domain.Table {
	index := make(map[string]int, len(tables))
	for i, t := range tables {
		index[t.Name] = i
	}

	deps := make([]map[int]struct{}, len(tables))
	for i, t := range tables {
		deps[i] = make(map[int]struct{})
		for _, fk := range t.ForeignKeys {
			j, ok := index[fk.ReferencedTable]
			if !ok || j == i {
				continue
			}
			deps[i][j] = struct{}{}
		}
	}

	done := make([]bool, len(tables))
	sorted := make([]domain.Table, 0, len(tables))
	for len(sorted) < len(tables) {
		next := -1
		for i := range tables {
			if done[i] {
				continue
			}
			if ready(deps[i], done) {
				next = i
				break
			}
		}
		if next < 0 {
			// 循環: 元の順序で最初の未処理テーブル
			for i := range tables {
				if !done[i] {
					next = i
					break
				}
			}
		}
		done[next] = true
		sorted = append(sorted, tables[next])
	}
	return sorted
}

func ready(deps map[int]struct{}, done []bool) bool {
	for j := range deps {
		if !done[j] {
			return false
		}
	}
	return true
}
