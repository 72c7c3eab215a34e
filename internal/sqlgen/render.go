package sqlgen

import (
	"fmt"
	"strings"
	"time"

	"schema-migrator/internal/domain"
)

// Render は操作列を方言のSQLに変換して連結する。何も出力しない操作は読み飛ばす。
func Render(ops []domain.Operation, dialect domain.Dialect) (string, error) {
	var parts []string
	for _, op := range ops {
		stmt, err := Compile(op, dialect)
		if err != nil {
			return "", err
		}
		if stmt != "" {
			parts = append(parts, stmt)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, "\n\n") + "\n", nil
}

// RenderArtifact は成果物のSQL本文をヘッダーコメント付きで組み立てる。
func RenderArtifact(name string, generatedAt time.Time, body string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- Migration: %s\n", name)
	fmt.Fprintf(&sb, "-- Generated at: %s\n", generatedAt.UTC().Format(time.RFC3339))
	if body != "" {
		sb.WriteString("\n")
		sb.WriteString(body)
	}
	return sb.String()
}

// SplitStatements はSQL本文を実行単位の文に分割する。
// 引用符内の";"と"--"コメントは区切りとして扱わず、コメントのみの行は捨てる。
func SplitStatements(sql string) []string {
	var (
		stmts   []string
		current strings.Builder
		quote   rune
	)
	flush := func() {
		s := strings.TrimSpace(current.String())
		if s != "" {
			stmts = append(stmts, s)
		}
		current.Reset()
	}

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			current.WriteRune(r)
			if r == quote {
				// 二重化された引用符はエスケープ
				if i+1 < len(runes) && runes[i+1] == quote {
					current.WriteRune(runes[i+1])
					i++
					continue
				}
				quote = 0
			}
			continue
		}
		switch {
		case r == '\'' || r == '"' || r == '`':
			quote = r
			current.WriteRune(r)
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
			current.WriteRune('\n')
		case r == ';':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return stmts
}
